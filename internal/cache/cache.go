package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Redis-backed key/value store used for session snapshot
// caching. It satisfies the workflow engine's SnapshotCache interface.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a new Redis-backed store adapter.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Set writes a value to Redis.
func (c *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}
