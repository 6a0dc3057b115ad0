package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// memoryEntry is a cached value plus its staleness metadata. Invalidation
// flips stale instead of deleting, so the entry records that a refetch is
// owed without forgetting when the value was last fetched.
type memoryEntry struct {
	data      []byte
	fetchedAt time.Time
	stale     bool
}

// memoryCache is the in-process L1 with TTL expiry and group-prefix
// stale marking.
type memoryCache struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func newMemoryCache(clock clockwork.Clock, ttl time.Duration) *memoryCache {
	return &memoryCache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
	}
}

func (c *memoryCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.stale {
		return nil, false
	}
	if c.clock.Now().After(entry.fetchedAt.Add(c.ttl)) {
		return nil, false
	}
	return entry.data, true
}

func (c *memoryCache) set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &memoryEntry{
		data:      data,
		fetchedAt: c.clock.Now(),
	}
}

// markStaleGroup marks every entry in a group stale and returns how many
// entries it touched. Keys are namespaced "<group>:<rest>".
func (c *memoryCache) markStaleGroup(group string) int {
	prefix := group + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	marked := 0
	for key, entry := range c.entries {
		if strings.HasPrefix(key, prefix) && !entry.stale {
			entry.stale = true
			marked++
		}
	}
	return marked
}

// isStale reports whether an entry exists and is marked stale.
func (c *memoryCache) isStale(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	return ok && entry.stale
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0

	for key, entry := range c.entries {
		if now.After(entry.fetchedAt.Add(c.ttl)) {
			delete(c.entries, key)
			evicted++
		}
	}

	return evicted
}
