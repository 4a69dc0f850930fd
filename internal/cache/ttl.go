package cache

import (
	"sync"
	"time"
)

// TTLCache is a generic per-process cache with a safety-net TTL, orthogonal
// to Bus invalidation (spec §4.4's "TTL policy" — default 1s for hot
// credentials under test, 60s in production).
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache builds a cache whose entries expire after ttl.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value and whether it was present and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	var zero V
	if !ok || c.now().After(entry.expiresAt) {
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate removes a single key.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear empties the cache (the handler for a "clearAll" event).
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]ttlEntry[V])
}

// InvalidateMatching removes every key for which match returns true. Used
// by composite-keyed caches (e.g. userID+serviceTag) to implement
// invalidateUser(id) when a single event must drop several entries.
func (c *TTLCache[K, V]) InvalidateMatching(match func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
		}
	}
}
