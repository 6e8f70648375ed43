package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"taskflow/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error)
	AdvanceTask(ctx context.Context, userID, id string) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	PublishEvents(ctx context.Context, events []domain.Event) error
	Ping(ctx context.Context) error
}

// versionTTL bounds how long a user's list version outlives its last write.
const versionTTL = 24 * time.Hour

var errStaleTasks = errors.New("task list changed while loading")

// Cache wraps a backend with a Redis-backed cache of each user's task list.
// Any successful write evicts the writer's cached list and bumps the list
// version; a fetch only fills the cache when the version it read before
// loading is still current.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL turns the cache into a pass-through.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, userID); ok {
		return tasks, nil
	}

	version := c.listVersion(ctx, userID)
	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, userID, version, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error) {
	t, err := c.base.CreateTask(ctx, userID, draft)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return t, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := c.base.UpdateTask(ctx, userID, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return t, nil
}

func (c *Cache) AdvanceTask(ctx context.Context, userID, id string) (domain.Task, error) {
	t, err := c.base.AdvanceTask(ctx, userID, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) PublishEvents(ctx context.Context, events []domain.Event) error {
	return c.base.PublishEvents(ctx, events)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) listVersion(ctx context.Context, userID string) string {
	if c.redis == nil {
		return ""
	}
	v, err := c.redis.Get(ctx, tasksVersionKey(userID)).Result()
	if err != nil {
		return ""
	}
	return v
}

// storeTasks caches tasks unless a write bumped the list version after
// version was read.
func (c *Cache) storeTasks(ctx context.Context, userID, version string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	vkey := tasksVersionKey(userID)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != version {
			return errStaleTasks
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tasksCacheKey(userID), data, c.ttl)
			return nil
		})
		return err
	}, vkey)
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	vkey := tasksVersionKey(userID)
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, versionTTL)
		pipe.Del(ctx, tasksCacheKey(userID))
		return nil
	})
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func tasksVersionKey(userID string) string {
	return "tasks:" + userID + ":v"
}
