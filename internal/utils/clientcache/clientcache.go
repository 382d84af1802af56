package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a keyed registry of lazily built values. The factory for a key runs
// at most once even when many goroutines ask for the same key concurrently;
// the engine uses it for per-destination pool buckets and circuit breakers.
type Cache[T any] struct {
	cache   sync.Map
	sfGroup singleflight.Group
}

// NewCache creates a new type-safe cache
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate returns the cached value for key, building it with factory on
// first use
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.sfGroup.Do(key, func() (any, error) {
		// Double-check after winning the flight
		if cached, ok := c.cache.Load(key); ok {
			return cached.(T), nil
		}

		value, err := factory()
		if err != nil {
			var zero T
			return zero, err
		}

		c.cache.Store(key, value)
		return value, nil
	})

	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// Get returns the value for key if it was already built
func (c *Cache[T]) Get(key string) (T, bool) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), true
	}
	var zero T
	return zero, false
}

// Range calls fn for every cached value until fn returns false
func (c *Cache[T]) Range(fn func(key string, value T) bool) {
	c.cache.Range(func(key, value any) bool {
		return fn(key.(string), value.(T))
	})
}

// Delete removes a value from the cache
func (c *Cache[T]) Delete(key string) {
	c.cache.Delete(key)
}

// Clear removes all values from the cache
func (c *Cache[T]) Clear() {
	c.cache.Range(func(key, value any) bool {
		c.cache.Delete(key)
		return true
	})
}
