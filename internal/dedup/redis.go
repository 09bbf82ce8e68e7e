package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "orders:processed"

// RedisDeduper records which idempotency keys each consumer group has already
// handled. Keys expire after ttl.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// Connect parses redisURL, pings the server and returns the client.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func (d *RedisDeduper) key(group, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, group, key)
}

// Processed reports whether key was already handled by group.
func (d *RedisDeduper) Processed(ctx context.Context, group, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(group, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records key for group until the ttl elapses.
func (d *RedisDeduper) MarkProcessed(ctx context.Context, group, key string) error {
	return d.client.Set(ctx, d.key(group, key), 1, d.ttl).Err()
}
