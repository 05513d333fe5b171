// Package cache provides a thread-safe cache whose entries expire after a
// fixed time to live.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache holds at most max entries. Each entry expires ttl after it was
// set; when the cache is full the entry closest to expiry is evicted.
type TTLCache[K comparable, V any] struct {
	mu   sync.Mutex
	data map[K]entry[V]
	ttl  time.Duration
	max  int
	now  func() time.Time
}

// New creates an empty cache. A max below 1 means unbounded.
func New[K comparable, V any](ttl time.Duration, max int) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]entry[V]),
		ttl:  ttl,
		max:  max,
		now:  time.Now,
	}
}

// Get returns the value for key if it is present and fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expires) {
		if ok {
			delete(c.data, key)
		}
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with a fresh time to live.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.data[key]; !ok && c.max > 0 && len(c.data) >= c.max {
		c.evictLocked(now)
	}
	c.data[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *TTLCache[K, V]) evictLocked(now time.Time) {
	var oldest K
	var oldestAt time.Time
	dropped := false
	for k, e := range c.data {
		if !now.Before(e.expires) {
			delete(c.data, k)
			dropped = true
			continue
		}
		if oldestAt.IsZero() || e.expires.Before(oldestAt) {
			oldest, oldestAt = k, e.expires
		}
	}
	if !dropped && !oldestAt.IsZero() {
		delete(c.data, oldest)
	}
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Invalidate removes every entry.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Len counts entries, expired ones included until they are touched.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
