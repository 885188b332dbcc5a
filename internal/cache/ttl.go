// Package cache holds run results for a bounded time. The clock is injected so
// expiry is testable, and entries can be invalidated explicitly.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

type entry[V any] struct {
	val V
	at  time.Time
}

// TTL is a concurrency-safe map whose entries expire ttl after they were set.
type TTL[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   Clock
	items map[string]entry[V]
}

// New returns a cache. A nil clock means time.Now; ttl <= 0 means entries
// never expire.
func New[V any](ttl time.Duration, clock Clock) *TTL[V] {
	if clock == nil {
		clock = time.Now
	}
	return &TTL[V]{ttl: ttl, now: clock, items: make(map[string]entry[V])}
}

// Get returns the value for key if present and fresh.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Age returns how long ago key was set, and false if absent.
func (c *TTL[V]) Age(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.at), true
}

// Set stores val under key, stamped with the clock's current time.
func (c *TTL[V]) Set(key string, val V) {
	c.mu.Lock()
	c.items[key] = entry[V]{val: val, at: c.now()}
	c.mu.Unlock()
}

// Invalidate drops key.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTL[V]) expired(e entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.at) > c.ttl
}
