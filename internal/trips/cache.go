package trips

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool-matching/internal/models"
)

// ErrCacheMiss is returned by a Cache when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the small subset of key/value operations the candidate cache needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CacheKey is shared with the trip event consumer so both sides agree on keys.
func CacheKey(sedeID string, direction models.Direction) string {
	return "trips:available:" + sedeID + ":" + string(direction)
}

// CachedProvider is a read-through cache in front of another Provider.
// Cache failures are logged and bypassed. Provider failures are never cached.
type CachedProvider struct {
	Next   Provider
	Cache  Cache
	TTL    time.Duration
	Logger *slog.Logger
}

func (c *CachedProvider) GetAvailableTrips(ctx context.Context, sedeID string, direction models.Direction) ([]models.TripCandidate, error) {
	if c.TTL <= 0 || c.Cache == nil {
		return c.Next.GetAvailableTrips(ctx, sedeID, direction)
	}
	key := CacheKey(sedeID, direction)

	b, err := c.Cache.Get(ctx, key)
	switch {
	case err == nil:
		var cached []models.TripCandidate
		if jerr := json.Unmarshal(b, &cached); jerr == nil {
			return cached, nil
		}
		c.logger().Warn("discarding corrupt trips cache entry", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		c.logger().Warn("trips cache read failed", "key", key, "error", err)
	}

	out, err := c.Next.GetAvailableTrips(ctx, sedeID, direction)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := c.Cache.Set(ctx, key, b, c.TTL); err != nil {
			c.logger().Warn("trips cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

// Invalidate drops the cached candidate set for one sede and direction.
func (c *CachedProvider) Invalidate(ctx context.Context, sedeID string, direction models.Direction) error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Del(ctx, CacheKey(sedeID, direction))
}

func (c *CachedProvider) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct{ C *redis.Client }

func NewRedisCache(addr, password string) *RedisCache {
	return &RedisCache{C: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.C.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.C.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	return r.C.Del(ctx, keys...).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }

func (r *RedisCache) Close() error { return r.C.Close() }

// MemoryCache is an in-process Cache for single-instance deployments and tests.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	v       []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]cacheEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !c.now().Before(e.expires) {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return e.v, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.store[key] = cacheEntry{v: value, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.store, k)
	}
	c.mu.Unlock()
	return nil
}
