package celllookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Cache stores lookup outcomes, including misses.
type Cache interface {
	// Get returns ok=false when nothing is cached; found=false for a cached
	// miss.
	Get(ctx context.Context, key cdr.CellKey) (coord cdr.Coordinate, found, ok bool)
	Set(ctx context.Context, key cdr.CellKey, coord cdr.Coordinate, found bool, ttl time.Duration)
}

// MemoryCache is a thread-safe TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	coord     cdr.Coordinate
	expiresAt time.Time
	notFound  bool // Cache negative results too
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*cacheEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key cdr.CellKey) (cdr.Coordinate, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key.String()]
	if !exists || c.now().After(entry.expiresAt) {
		return cdr.Coordinate{}, false, false
	}
	return entry.coord, !entry.notFound, true
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key cdr.CellKey, coord cdr.Coordinate, found bool, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = &cacheEntry{
		coord:     coord,
		expiresAt: c.now().Add(ttl),
		notFound:  !found,
	}
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// StartCleanup removes expired entries every interval until ctx is done.
func (c *MemoryCache) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// RedisCacheConfig configures the shared Redis cache.
type RedisCacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisCache shares lookup outcomes between instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type redisEntry struct {
	Found bool           `json:"found"`
	Coord cdr.Coordinate `json:"coord"`
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get implements Cache. Redis errors read as a cache miss.
func (c *RedisCache) Get(ctx context.Context, key cdr.CellKey) (cdr.Coordinate, bool, bool) {
	data, err := c.client.Get(ctx, c.prefix+key.String()).Bytes()
	if err != nil {
		return cdr.Coordinate{}, false, false
	}
	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return cdr.Coordinate{}, false, false
	}
	return e.Coord, e.Found, true
}

// Set implements Cache. Write failures are dropped.
func (c *RedisCache) Set(ctx context.Context, key cdr.CellKey, coord cdr.Coordinate, found bool, ttl time.Duration) {
	data, err := json.Marshal(redisEntry{Found: found, Coord: coord})
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+key.String(), data, ttl)
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
