package api

import (
	"context"

	"taskflow/domain"
)

// Storage abstracts persistence for handlers. Every call is scoped to the
// owner identified by userID.
type Storage interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error)
	AdvanceTask(ctx context.Context, userID, id string) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	Ping(ctx context.Context) error
}

// EventPublisher delivers task change events downstream.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []domain.Event) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper rejects repeated requests carrying the same idempotency key for
// one operation and user.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, op, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the operation fails.
	Remove(ctx context.Context, op, userID, key string) error
}
