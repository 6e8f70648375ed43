package domain

import (
	"strings"
	"time"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every valid priority in ascending order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a single user-owned unit of work.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// TaskDraft carries the fields supplied when creating a task.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Normalize trims the title, drops blank descriptions and fills in the
// default status and priority.
func (d TaskDraft) Normalize() TaskDraft {
	d.Title = strings.TrimSpace(d.Title)
	if d.Description != nil && strings.TrimSpace(*d.Description) == "" {
		d.Description = nil
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	return d
}

// Validate checks a normalized draft.
func (d TaskDraft) Validate() error {
	if d.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if !d.Status.Valid() {
		return NewValidationError("status", "unknown status "+string(d.Status))
	}
	if !d.Priority.Valid() {
		return NewValidationError("priority", "unknown priority "+string(d.Priority))
	}
	return nil
}

// TaskPatch is a partial update. Nil fields are left unchanged; a blank
// description clears the field, as it does on create.
type TaskPatch struct {
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	Priority         *Priority  `json:"priority,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ClearDescription bool       `json:"clear_description,omitempty"`
	ClearDueDate     bool       `json:"clear_due_date,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.DueDate == nil && !p.ClearDescription && !p.ClearDueDate
}

func (p TaskPatch) Validate() error {
	if p.Empty() {
		return NewValidationError("patch", "no fields to update")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return NewValidationError("title", "must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return NewValidationError("status", "unknown status "+string(*p.Status))
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return NewValidationError("priority", "unknown priority "+string(*p.Priority))
	}
	if p.ClearDescription && p.Description != nil {
		return NewValidationError("description", "cannot set and clear in the same update")
	}
	if p.ClearDueDate && p.DueDate != nil {
		return NewValidationError("due_date", "cannot set and clear in the same update")
	}
	return nil
}

// Apply returns t with the patch applied. Identity and timestamps are untouched.
func (p TaskPatch) Apply(t Task) Task {
	t = t.Clone()
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		d := *p.Description
		t.Description = &d
	}
	if p.ClearDescription || (p.Description != nil && strings.TrimSpace(*p.Description) == "") {
		t.Description = nil
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.ClearDueDate {
		t.DueDate = nil
	}
	return t
}
