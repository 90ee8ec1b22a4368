// Package cache stores decoded backend payloads with a TTL. Weather payloads
// are keyed by region tag; the catalog snapshot lives under a single key.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a TTL store for values of type T.
// Get returns (value, true, nil) on a hit and (zero, false, nil) on a miss.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries
// are removed on access.
type InMemoryCache[T any] struct {
	clock clockwork.Clock

	mu   sync.Mutex
	data map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// NewInMemoryCache returns an empty cache on the real clock.
func NewInMemoryCache[T any]() *InMemoryCache[T] {
	return NewInMemoryCacheWithClock[T](clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock returns an empty cache reading time from clock.
func NewInMemoryCacheWithClock[T any](clock clockwork.Clock) *InMemoryCache[T] {
	return &InMemoryCache[T]{clock: clock, data: make(map[string]cacheEntry[T])}
}

// Get implements Cache.Get.
func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.data, key)
		return zero, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.Set. A non-positive ttl stores nothing.
func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry[T]{value: value, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
