package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"djtunez-api/domain"
)

type readBackend interface {
	FetchEvent(ctx context.Context, eventID string) (domain.Event, error)
	FetchDJ(ctx context.Context, djID string) (domain.DJ, error)
	FetchLiveEvent(ctx context.Context, djID string) (domain.Event, error)
	DeleteEventTree(ctx context.Context, eventID string) error
}

// Cache wraps a Store with Redis-backed caching for the public read model:
// events, DJ profiles and the live-event lookup. These are the hot fan-facing
// reads during a set; queue writes and checkout reads always go to the store.
// Negative results are never cached, so a just-created event is visible on
// the first request after creation.
type Cache struct {
	*Store
	base  readBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base readBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Store); ok {
		c.Store = s
	}
	return c
}

func (c *Cache) FetchEvent(ctx context.Context, eventID string) (domain.Event, error) {
	var cached domain.Event
	if c.load(ctx, eventCacheKey(eventID), &cached) {
		return cached, nil
	}

	event, err := c.base.FetchEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}

	c.store(ctx, eventCacheKey(eventID), event)
	return event, nil
}

func (c *Cache) FetchDJ(ctx context.Context, djID string) (domain.DJ, error) {
	var cached domain.DJ
	if c.load(ctx, djCacheKey(djID), &cached) {
		return cached, nil
	}

	dj, err := c.base.FetchDJ(ctx, djID)
	if err != nil {
		return domain.DJ{}, err
	}

	c.store(ctx, djCacheKey(djID), dj)
	return dj, nil
}

func (c *Cache) FetchLiveEvent(ctx context.Context, djID string) (domain.Event, error) {
	var cached domain.Event
	if c.load(ctx, liveCacheKey(djID), &cached) {
		return cached, nil
	}

	event, err := c.base.FetchLiveEvent(ctx, djID)
	if err != nil {
		return domain.Event{}, err
	}

	c.store(ctx, liveCacheKey(djID), event)
	return event, nil
}

// DeleteEventTree evicts the event from the cache after deleting it, so a
// cached copy never outlives the tree by more than the in-flight request.
// That includes the owning DJ's live-event lookup, which caches the same
// event under a different key; the DJ id is read before the tree goes away.
func (c *Cache) DeleteEventTree(ctx context.Context, eventID string) error {
	event, fetchErr := c.base.FetchEvent(ctx, eventID)
	if err := c.base.DeleteEventTree(ctx, eventID); err != nil {
		return err
	}
	keys := []string{eventCacheKey(eventID)}
	if fetchErr == nil && event.DJID != "" {
		keys = append(keys, liveCacheKey(event.DJID))
	}
	c.evict(ctx, keys...)
	return nil
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func eventCacheKey(eventID string) string {
	return "event:" + eventID
}

func djCacheKey(djID string) string {
	return "dj:" + djID
}

func liveCacheKey(djID string) string {
	return "live:" + djID
}
