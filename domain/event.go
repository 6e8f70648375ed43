package domain

import "encoding/json"

const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// Event announces a committed change to a task.
type Event struct {
	ID       string          `json:"id"`
	UserID   string          `json:"userId"`
	EntityID string          `json:"entityId"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Time     int64           `json:"time"`
}
