package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"taskflow/domain"
)

var (
	// ErrNotFound is returned when the task does not exist in the caller's partition.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when a conditional write kept losing to concurrent writers.
	ErrConflict = errors.New("task was modified concurrently")
)

const maxUpdateAttempts = 5

type table interface {
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// Storage persists tasks in an Azure table partitioned by owner and
// publishes change events to an Azure queue.
type Storage struct {
	taskTable   table
	eventsQueue queue
	now         func() time.Time
	newID       func() string
}

// New creates a Storage instance from the given connection string. An empty
// events queue name disables event publishing.
func New(connStr, tasksTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "table service client")
	}
	s := &Storage{
		taskTable: svc.NewClient(tasksTable),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if eventsQueue == "" {
		return s, nil
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "queue client")
	}
	s.eventsQueue = eq
	return s, nil
}

func partitionFilter(userID string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
}

// FetchTasks retrieves all tasks owned by userID, newest first.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := partitionFilter(userID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "list tasks")
		}
		for _, e := range resp.Entities {
			t, err := decodeTask(e)
			if err != nil {
				return nil, pkgerrors.Wrap(err, "decode task")
			}
			tasks = append(tasks, t)
		}
	}
	domain.SortNewestFirst(tasks)
	return tasks, nil
}

// CreateTask inserts a new task for userID and returns it with its
// assigned id and timestamps.
func (s *Storage) CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := tableTime(s.now())
	t := domain.Task{
		ID:          s.newID(),
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.DueDate != nil {
		d := tableTime(*t.DueDate)
		t.DueDate = &d
	}
	payload, err := encodeTask(userID, t)
	if err != nil {
		return domain.Task{}, pkgerrors.Wrap(err, "encode task")
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, pkgerrors.Wrap(err, "insert task")
	}
	return t, nil
}

// GetTask loads a single task owned by userID.
func (s *Storage) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	t, _, err := s.getTask(ctx, userID, id)
	return t, err
}

func (s *Storage) getTask(ctx context.Context, userID, id string) (domain.Task, azcore.ETag, error) {
	ent, err := s.taskTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Task{}, "", ErrNotFound
		}
		return domain.Task{}, "", pkgerrors.Wrap(err, "get task")
	}
	t, err := decodeTask(ent.Value)
	if err != nil {
		return domain.Task{}, "", pkgerrors.Wrap(err, "decode task")
	}
	return t, ent.ETag, nil
}

// UpdateTask applies patch to the task and returns the stored result. The
// write is conditional on the ETag that was read so UpdatedAt never moves
// backwards; lost races are retried against the fresh entity.
func (s *Storage) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	return s.modifyTask(ctx, userID, id, func(t domain.Task) domain.Task {
		return patch.Apply(t)
	})
}

// AdvanceTask moves the task one step along the status cycle.
func (s *Storage) AdvanceTask(ctx context.Context, userID, id string) (domain.Task, error) {
	return s.modifyTask(ctx, userID, id, func(t domain.Task) domain.Task {
		t.Status = domain.NextStatus(t.Status)
		return t
	})
}

func (s *Storage) modifyTask(ctx context.Context, userID, id string, change func(domain.Task) domain.Task) (domain.Task, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, etag, err := s.getTask(ctx, userID, id)
		if err != nil {
			return domain.Task{}, err
		}
		next := change(cur)
		next.ID = cur.ID
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = tableTime(s.now())
		if next.UpdatedAt.Before(cur.UpdatedAt) {
			next.UpdatedAt = cur.UpdatedAt
		}
		payload, err := encodeTask(userID, next)
		if err != nil {
			return domain.Task{}, pkgerrors.Wrap(err, "encode task")
		}
		_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err == nil {
			return next, nil
		}
		switch {
		case isStatus(err, http.StatusPreconditionFailed):
			continue
		case isStatus(err, http.StatusNotFound):
			return domain.Task{}, ErrNotFound
		default:
			return domain.Task{}, pkgerrors.Wrap(err, "update task")
		}
	}
	return domain.Task{}, ErrConflict
}

// DeleteTask removes the task permanently.
func (s *Storage) DeleteTask(ctx context.Context, userID, id string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return ErrNotFound
		}
		return pkgerrors.Wrap(err, "delete task")
	}
	return nil
}

// Ping checks that the task table answers queries.
func (s *Storage) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	if _, err := pager.NextPage(ctx); err != nil {
		return pkgerrors.Wrap(err, "ping task table")
	}
	return nil
}

// PublishEvents sends the given events to the events queue. It is a no-op
// when no queue is configured.
func (s *Storage) PublishEvents(ctx context.Context, events []domain.Event) error {
	if s.eventsQueue == nil {
		return nil
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventsQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return pkgerrors.Wrap(err, "enqueue event")
		}
	}
	return nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
