// Package cache implements the key-based query cache in front of the tracker
// API. Entries hold the last-fetched value plus staleness metadata; the
// realtime dispatcher only marks entries stale, and the actual refetch is
// pull-based — it happens when a consumer next asks for the key.
//
// The cache is layered: an in-memory L1 with TTL expiry, and an optional
// Redis L2 that survives daemon restarts. Concurrent refetches of the same
// key are collapsed with singleflight.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/metrics"
)

const redisKeyPrefix = "querycache:"

// FetchFunc loads a value from the backend when the cache cannot serve it.
type FetchFunc func(ctx context.Context) ([]byte, error)

type Cache struct {
	mem   *memoryCache
	rdb   goredis.Cmdable // nil when no L2 is configured
	ttl   time.Duration
	group singleflight.Group
}

// New creates a layered query cache. Pass a nil rdb to run memory-only.
func New(clock clockwork.Clock, ttl time.Duration, rdb goredis.Cmdable) *Cache {
	return &Cache{
		mem: newMemoryCache(clock, ttl),
		rdb: rdb,
		ttl: ttl,
	}
}

// Key builds a namespaced cache key. The group prefix is what Invalidate
// matches against.
func Key(group string, parts ...string) string {
	if len(parts) == 0 {
		return group + ":all"
	}
	return group + ":" + strings.Join(parts, ":")
}

// Get returns the cached value for key, refetching when the entry is
// missing, expired, or marked stale. Concurrent callers for the same key
// share a single fetch.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) ([]byte, error) {
	if data, ok := c.mem.get(key); ok {
		metrics.CacheRequestsTotal.WithLabelValues("memory", "hit").Inc()
		return data, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()

	// The L2 is only consulted when the L1 entry is absent, not when it is
	// stale: invalidation deletes the L2 key, so a stale L1 entry implies
	// the L2 copy is gone or equally untrustworthy.
	if c.rdb != nil && !c.mem.isStale(key) {
		if data, ok := c.getL2(ctx, key); ok {
			metrics.CacheRequestsTotal.WithLabelValues("redis", "hit").Inc()
			c.mem.set(key, data)
			return data, nil
		}
		metrics.CacheRequestsTotal.WithLabelValues("redis", "miss").Inc()
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := fetch(ctx)
		if err != nil {
			metrics.CacheRequestsTotal.WithLabelValues("fetch", "error").Inc()
			return nil, err
		}
		metrics.CacheRequestsTotal.WithLabelValues("fetch", "ok").Inc()

		c.mem.set(key, data)
		c.setL2(ctx, key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate marks every entry in the given groups stale. L1 entries are
// flagged in place; L2 keys are deleted. Values are never written here.
func (c *Cache) Invalidate(ctx context.Context, groups ...string) {
	for _, group := range groups {
		marked := c.mem.markStaleGroup(group)
		metrics.CacheInvalidationsTotal.WithLabelValues(group).Add(float64(marked))

		if c.rdb != nil {
			c.deleteL2Group(ctx, group)
		}

		slog.DebugContext(ctx, "Cache group invalidated", "group", group, "entries_marked", marked)
	}
}

// StartEvictionTimer runs a periodic goroutine that evicts expired L1
// entries. Returns a stop function that should be deferred.
func (c *Cache) StartEvictionTimer(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				evicted := c.mem.evictExpired()
				if evicted > 0 {
					slog.Debug("Evicted expired cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

// Size returns the number of L1 entries, stale included.
func (c *Cache) Size() int {
	return c.mem.size()
}

func (c *Cache) getL2(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis cache GET failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) setL2(ctx context.Context, key string, data []byte) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		slog.Warn("Failed to populate Redis cache", "key", key, "error", err)
	}
}

func (c *Cache) deleteL2Group(ctx context.Context, group string) {
	pattern := redisKeyPrefix + group + ":*"

	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Warn("Redis cache SCAN failed during invalidation", "group", group, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("Redis cache DEL failed during invalidation", "group", group, "error", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Fetch is the typed convenience wrapper around Cache.Get: values round-trip
// through JSON so the cache itself stays byte-oriented.
func Fetch[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error)) (T, error) {
	var out T

	data, err := c.Get(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value for cache key %q: %w", key, err)
		}
		return encoded, nil
	})
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal cached value for key %q: %w", key, err)
	}
	return out, nil
}
