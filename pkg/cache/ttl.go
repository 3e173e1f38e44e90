package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a small map whose entries go stale after a fixed lifetime. Stale
// entries are kept so callers can fall back to them when a refresh fails.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[K]entry[V]
}

func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{ttl: ttl, items: map[K]entry[V]{}}
}

// Fresh returns the value only while it has not expired.
func (c *TTL[K, V]) Fresh(key K, now time.Time) (V, bool) {
	var zero V
	e, ok := c.lookup(key)
	if !ok || (!e.expiresAt.IsZero() && !now.Before(e.expiresAt)) {
		return zero, false
	}
	return e.value, true
}

// Stale returns the last stored value regardless of age.
func (c *TTL[K, V]) Stale(key K) (V, bool) {
	e, ok := c.lookup(key)
	return e.value, ok
}

func (c *TTL[K, V]) Set(key K, value V, now time.Time) {
	exp := time.Time{}
	if c.ttl > 0 {
		exp = now.Add(c.ttl)
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: exp}
	c.mu.Unlock()
}

func (c *TTL[K, V]) lookup(key K) (entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	return e, ok
}
