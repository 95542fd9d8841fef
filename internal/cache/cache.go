// Package cache is a small read-through TTL cache. Values are loaded on
// demand, kept until their TTL elapses or they are invalidated, and
// concurrent misses for one key share a single load.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches a fresh value for a key.
type LoadFunc[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value      T
	validUntil time.Time
}

type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[T]
	// gen is bumped on every invalidation so a load that started before it
	// does not store its now stale result.
	gen   map[string]uint64
	group singleflight.Group
}

type Option[T any] func(*Cache[T])

// WithClock replaces time.Now, for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

func New[T any](ttl time.Duration, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]entry[T]{},
		gen:     map[string]uint64{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// Get returns the cached value for key while it is valid, otherwise it calls
// load and caches the result. Errors are returned and never cached.
func (c *Cache[T]) Get(ctx context.Context, key string, load LoadFunc[T]) (T, time.Time, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.validUntil) {
		c.mu.Unlock()
		return e.value, e.validUntil, nil
	}
	gen := c.gen[key]
	c.gen[key] = gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		e := entry[T]{value: val, validUntil: c.now().Add(c.ttl)}
		c.mu.Lock()
		if c.gen[key] == gen {
			c.entries[key] = e
		}
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		var zero T
		return zero, time.Time{}, err
	}
	e := v.(entry[T])
	return e.value, e.validUntil, nil
}

// Invalidate drops key; the next Get loads again.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gen[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// InvalidateAll drops every key.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.gen))
	for k := range c.gen {
		c.gen[k]++
		keys = append(keys, k)
	}
	c.entries = map[string]entry[T]{}
	c.mu.Unlock()
	for _, k := range keys {
		c.group.Forget(k)
	}
}
