package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheTTL     = 30 * time.Second
	cacheKeyspace = "overwatch:auth:"
)

// Cache holds validated auth responses for cacheTTL per credential,
// bounded at 10,000 entries when running in in-process mode. When a
// Redis client is supplied the TTL is delegated to Redis directly and
// the entry ceiling is enforced by Redis eviction policy instead.
type Cache struct {
	redis *redis.Client

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resp      *Response
	expiresAt time.Time
}

// NewCache builds a Cache. If redisClient is nil, the cache runs
// entirely in-process with a bounded map.
func NewCache(redisClient *redis.Client) *Cache {
	return &Cache{redis: redisClient, entries: make(map[string]cacheEntry)}
}

// Get returns a cached response for key, if present and unexpired.
func (c *Cache) Get(key string) (*Response, bool) {
	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		val, err := c.redis.Get(ctx, cacheKeyspace+key).Result()
		if err != nil {
			return nil, false
		}
		var resp Response
		if json.Unmarshal([]byte(val), &resp) != nil {
			return nil, false
		}
		return &resp, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.resp, true
}

// Set stores resp for key with the standard TTL, including negative
// (invalid) results, per §4.3.
func (c *Cache) Set(key string, resp *Response) {
	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		_ = c.redis.Set(ctx, cacheKeyspace+key, data, cacheTTL).Err()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= 10000 {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{resp: resp, expiresAt: time.Now().Add(cacheTTL)}
}

// Delete explicitly invalidates a cached entry.
func (c *Cache) Delete(key string) {
	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.redis.Del(ctx, cacheKeyspace+key).Err()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// evictOldestLocked drops the single oldest-expiring entry to make
// room under the 10,000-entry ceiling. Caller holds c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
