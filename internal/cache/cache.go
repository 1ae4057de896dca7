// Package cache provides a session-lifetime query cache with fetch de-duplication.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a value on cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Cache is an injectable key/value cache with at most one in-flight fetch per
// key. Entries never expire; staleness only follows explicit invalidation, so
// a resolved value serves every later lookup for the lifetime of the cache.
// Construct separate instances rather than sharing module-level state.
type Cache[V any] struct {
	mu     sync.RWMutex
	values map[string]V
	group  singleflight.Group
}

// New constructs an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{values: make(map[string]V)}
}

// Get returns the cached value for key, or runs fetch and caches its result.
// Concurrent callers for the same key share a single fetch: all observe the
// same resolved value or the same failure. Failures are not cached.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another caller may have resolved the key between the
		// read lock release and joining the flight group.
		c.mu.RLock()
		v, ok := c.values[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.values[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Peek returns the cached value without triggering a fetch.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value directly, replacing any cached entry. Replacement is
// whole-value only, so readers never observe a torn write.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Invalidate drops the entry for key; the next Get will fetch.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.values = make(map[string]V)
	c.mu.Unlock()
}
