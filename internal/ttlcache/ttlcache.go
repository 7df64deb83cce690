// ABOUTME: Explicit TTL cache owned by its caller, never a process-global
// ABOUTME: Check-on-read expiry plus a periodic size-bounded sweep

package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a size-bounded TTL cache. Reads expire entries lazily; a sweeper
// goroutine (optional) prunes expired entries and trims the cache back to
// capacity, oldest first.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration
	max     int
}

// New creates a cache holding at most max entries for at most ttl each.
// A max below 1 disables the size bound.
func New[K comparable, V any](ttl time.Duration, max int) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		max:     max,
	}
}

// Get returns the cached value for key if it is still fresh.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Since(e.storedAt) > c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value, evicting the oldest entries if over capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, storedAt: time.Now()}
	c.trimLocked()
}

// Delete removes a key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, counting not-yet-swept expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries and trims to capacity. Returns how many
// entries were dropped.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	for key, e := range c.entries {
		if time.Since(e.storedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
	c.trimLocked()
	return before - len(c.entries)
}

// StartSweeper runs Sweep at the given interval until the returned stop
// func is called.
func (c *Cache[K, V]) StartSweeper(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// trimLocked evicts the oldest entries until the cache fits its bound.
func (c *Cache[K, V]) trimLocked() {
	if c.max < 1 {
		return
	}
	for len(c.entries) > c.max {
		var oldestKey K
		var oldestAt time.Time
		first := true
		for key, e := range c.entries {
			if first || e.storedAt.Before(oldestAt) {
				oldestKey, oldestAt = key, e.storedAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}
