package api

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// opCreateTask scopes idempotency keys of POST /api/tasks.
const opCreateTask = "create"

// RedisDeduper remembers idempotency keys per operation and user in Redis,
// so a retried request is rejected by every API instance until the key
// expires.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(op, userID, key string) string {
	return strings.Join([]string{"idem", op, userID, key}, ":")
}

// Add claims key for op on behalf of userID. It reports false when the key
// was already claimed.
func (r *RedisDeduper) Add(ctx context.Context, op, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, dedupeKey(op, userID, key), 1, r.ttl).Result()
}

// Remove releases a claimed key after the operation failed.
func (r *RedisDeduper) Remove(ctx context.Context, op, userID, key string) error {
	return r.client.Del(ctx, dedupeKey(op, userID, key)).Err()
}
