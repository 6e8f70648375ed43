package domain

import (
	"sort"
	"strings"
)

// FilterAll disables the status or priority predicate.
const FilterAll = "all"

// Filter narrows a task list. Zero values match everything.
type Filter struct {
	Search   string
	Status   string
	Priority string
}

// Match reports whether t satisfies every predicate of the filter.
func (f Filter) Match(t Task) bool {
	return f.matchSearch(t) && f.matchStatus(t) && f.matchPriority(t)
}

func (f Filter) matchSearch(t Task) bool {
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	if strings.Contains(strings.ToLower(t.Title), q) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), q)
}

func (f Filter) matchStatus(t Task) bool {
	return f.Status == "" || f.Status == FilterAll || Status(f.Status) == t.Status
}

func (f Filter) matchPriority(t Task) bool {
	return f.Priority == "" || f.Priority == FilterAll || Priority(f.Priority) == t.Priority
}

// Apply returns the tasks matching f, keeping their relative order.
func (f Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Validate rejects status and priority values outside the known sets.
func (f Filter) Validate() error {
	if f.Status != "" && f.Status != FilterAll && !Status(f.Status).Valid() {
		return NewValidationError("status", "unknown status "+f.Status)
	}
	if f.Priority != "" && f.Priority != FilterAll && !Priority(f.Priority).Valid() {
		return NewValidationError("priority", "unknown priority "+f.Priority)
	}
	return nil
}

// SortNewestFirst orders tasks by creation time, newest first. Ties keep
// id order so the result is deterministic.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
