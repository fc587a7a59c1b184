package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds short-lived boolean facts: whether an object exists, whether a
// session was already reconciled. Implementations are injected so tests and
// single-instance deployments can run without Redis.
type Cache interface {
	// GetBool returns the cached value and whether one was present.
	GetBool(ctx context.Context, key string) (val, found bool, err error)
	SetBool(ctx context.Context, key string, val bool, ttl time.Duration) error
	// Claim atomically marks key as taken. It reports true only for the
	// first caller within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type memEntry struct {
	val     bool
	expires time.Time
}

// MemoryCache keeps entries in-process (single instance only).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryCache builds an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) getLocked(key string) (memEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *MemoryCache) GetBool(_ context.Context, key string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.getLocked(key)
	return e.val, ok, nil
}

func (c *MemoryCache) SetBool(_ context.Context, key string, val bool, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memEntry{val: val, expires: c.expiry(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.getLocked(key); ok {
		return false, nil
	}
	c.entries[key] = memEntry{val: true, expires: c.expiry(ttl)}
	return true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// RedisCache stores entries in Redis under a key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache builds a Redis-backed cache.
func NewRedisCache(addr, password, prefix string) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), prefix)
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "settlements"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Close releases the underlying client.
func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) GetBool(ctx context.Context, key string) (bool, bool, error) {
	v, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

func (c *RedisCache) SetBool(ctx context.Context, key string, val bool, ttl time.Duration) error {
	v := "0"
	if val {
		v = "1"
	}
	return c.client.Set(ctx, c.key(key), v, ttl).Err()
}

func (c *RedisCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), "1", ttl).Result()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
