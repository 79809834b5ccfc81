package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores processed webhook event ids in Redis so every instance
// skips deliveries another instance already turned into a queue entry.
// Retention is bounded by the TTL: the provider stops retrying an
// acknowledged event long before the key expires.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

// Add records the event id if it does not already exist. It returns true when
// the id was newly added.
func (r *RedisDeduper) Add(ctx context.Context, provider, eventID string) (bool, error) {
	return r.client.SetNX(ctx, r.key(provider, eventID), 1, r.ttl).Result()
}

// Remove deletes a previously recorded id. It is used when the queue write
// fails so the provider's retried delivery is processed instead of skipped.
func (r *RedisDeduper) Remove(ctx context.Context, provider, eventID string) error {
	return r.client.Del(ctx, r.key(provider, eventID)).Err()
}
