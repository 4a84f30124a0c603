package orchestration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ultrai/orchestrator/core"
)

// ResultCache stores finished pipeline results keyed by run inputs
type ResultCache interface {
	Get(ctx context.Context, key string) (*PipelineResult, bool)
	Set(ctx context.Context, key string, result *PipelineResult, ttl time.Duration)
}

// CacheKey derives the cache key from the run inputs: the query, the
// sorted model set and the run options. Model order must not affect
// the key.
func CacheKey(query string, models []string, options map[string]interface{}) string {
	sorted := make([]string, len(models))
	copy(sorted, models)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(query))
	for _, m := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(m))
	}
	if len(options) > 0 {
		keys := make([]string, 0, len(options))
		for k := range options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{0})
			h.Write([]byte(k))
			h.Write([]byte{'='})
			if encoded, err := json.Marshal(options[k]); err == nil {
				h.Write(encoded)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// memoryEntry is one cached result with its expiry
type memoryEntry struct {
	result    *PipelineResult
	expiresAt time.Time
}

// MemoryCache is the in-process result cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	maxSize int
}

// NewMemoryCache creates an in-memory cache bounded to maxSize entries
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		maxSize: maxSize,
	}
}

// Get returns a cached result when present and fresh
func (c *MemoryCache) Get(ctx context.Context, key string) (*PipelineResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

// Set stores a result. When full, one expired or arbitrary entry is
// evicted; precision is not worth an LRU here.
func (c *MemoryCache) Set(ctx context.Context, key string, result *PipelineResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOne()
	}
	c.entries[key] = &memoryEntry{
		result:    result,
		expiresAt: time.Now().Add(ttl),
	}
}

// evictOne drops an expired entry if any exists, else an arbitrary
// one. Caller holds c.mu.
func (c *MemoryCache) evictOne() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			return
		}
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const redisCacheKeyPrefix = "ultrai:pipeline:result:"

// RedisCache is the Redis-backed result cache, for sharing results
// across processes. Failures degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	logger core.Logger
}

// NewRedisCache connects to Redis at the given URL
func NewRedisCache(redisURL string, logger core.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// Get fetches and decodes a cached result
func (c *RedisCache) Get(ctx context.Context, key string) (*PipelineResult, bool) {
	data, err := c.client.Get(ctx, redisCacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Redis cache read failed", map[string]interface{}{
				"operation": "result_cache_get",
				"error":     err.Error(),
			})
		}
		return nil, false
	}

	var result PipelineResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Redis cache entry corrupt", map[string]interface{}{
			"operation": "result_cache_get",
			"error":     err.Error(),
		})
		return nil, false
	}
	return &result, true
}

// Set encodes and stores a result with the given TTL
func (c *RedisCache) Set(ctx context.Context, key string, result *PipelineResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisCacheKeyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", map[string]interface{}{
			"operation": "result_cache_set",
			"error":     err.Error(),
		})
	}
}

// Close releases the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
