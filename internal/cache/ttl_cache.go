// Package cache provides thread-safe caching utilities with time-based expiration.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache is a thread-safe cache in which every entry expires ttl after it
// was stored. When maxEntries is positive the cache never holds more than
// that many entries; the entry closest to expiry is evicted first.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	data       map[K]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits, misses uint64
}

// New creates an empty TTLCache. A non-positive maxEntries means unbounded.
func New[K comparable, V any](ttl time.Duration, maxEntries int) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data:       make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves a value from the cache.
// Returns the zero value and ok=false if the key is missing or expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expires) {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value, restarting its TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.data[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the one closest to expiry when none
// have expired. MUST be called with the write lock held.
func (c *TTLCache[K, V]) evictLocked(now time.Time) {
	var (
		oldest    K
		oldestExp time.Time
		found     bool
	)
	removed := 0
	for k, e := range c.data {
		if !now.Before(e.expires) {
			delete(c.data, k)
			removed++
			continue
		}
		if !found || e.expires.Before(oldestExp) {
			oldest, oldestExp, found = k, e.expires, true
		}
	}
	if removed == 0 && found {
		delete(c.data, oldest)
	}
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns the hit and miss counts since creation.
func (c *TTLCache[K, V]) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
