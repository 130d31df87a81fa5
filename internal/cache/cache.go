// Package cache implements a read-mostly, content-addressed cache with
// TTLs from internal/config. Only weather results go through it (via
// providers.CachingWeatherProvider); the analysis-comparison lookup
// reads the store directly, and CacheConfig.AnalysisHistoryTTL is not
// read anywhere. It prefers Redis (grounded in
// cryptorun's use of redis/go-redis) when configured, and falls back
// to an in-process cache keyed the same way the go-earthengine client
// caches query results (sha256 of the request shape).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the narrow interface both backends satisfy.
type Cache interface {
	Get(ctx context.Context, key string, into interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Key derives a stable, content-addressed cache key from an arbitrary
// set of fields (e.g. lat/lng/window), the way go-earthengine hashes
// its query shape.
func Key(prefix string, parts ...interface{}) string {
	b, _ := json.Marshal(parts)
	sum := sha256.Sum256(b)
	return prefix + ":" + hex.EncodeToString(sum[:8])
}

// RedisCache is a thin JSON-marshaling wrapper around go-redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisCache) Get(ctx context.Context, key string, into interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, into)
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// MemoryCache is the in-process fallback used when no Redis address
// is configured, or by tests.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

type memEntry struct {
	value      []byte
	expiration time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]memEntry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string, into interface{}) (bool, error) {
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.expiration.IsZero() && time.Now().After(entry.expiration) {
		return false, nil
	}
	return true, json.Unmarshal(entry.value, into)
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expiration time.Time
	if ttl > 0 {
		expiration = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = memEntry{value: data, expiration: expiration}
	m.mu.Unlock()
	return nil
}
