// Package cache provides an in-memory cache with TTL and max-size eviction
// for values that are expensive to load and rarely change, such as state
// catalogs.
package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its expiration time and insertion order.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	seq       uint64
}

// LRUCache is a thread-safe in-memory cache with TTL and max-size eviction.
// When the cache reaches maxSize, the oldest entry (by insertion order) is
// evicted to make room for new entries. Expired entries are lazily evicted
// on Get.
type LRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*entry[V]
	maxSize int
	ttl     time.Duration
	seq     uint64
	now     func() time.Time
}

// NewLRUCache creates a cache with the given maximum size and TTL.
// maxSize below 1 is raised to 1; a non-positive ttl becomes one minute.
func NewLRUCache[K comparable, V any](maxSize int, ttl time.Duration) *LRUCache[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LRUCache[K, V]{
		items:   make(map[K]*entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached value by key. It reports false if the key is missing
// or expired.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

// Set stores a value. If the cache is at capacity, the oldest entry is
// evicted first.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.items[key] = &entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
		seq:       c.seq,
	}
}

// Invalidate removes a specific key from the cache.
func (c *LRUCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes all entries from the cache.
func (c *LRUCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[V], c.maxSize)
}

// Size returns the number of entries, including expired ones not yet
// cleaned up.
func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry inserted first. Must be called with c.mu held.
func (c *LRUCache[K, V]) evictOldest() {
	var (
		oldestKey K
		oldestSeq uint64
		found     bool
	)
	for k, e := range c.items {
		if !found || e.seq < oldestSeq {
			oldestKey, oldestSeq, found = k, e.seq, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}
