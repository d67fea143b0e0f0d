// Package clientcache memoizes SDK clients by configuration hash.
package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds one client per key. Concurrent misses for the same key build a single client.
type Cache[T any] struct {
	clients sync.Map
	group   singleflight.Group
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate returns the client for key, calling build on a miss.
// Failed builds are not cached.
func (c *Cache[T]) GetOrCreate(key string, build func() (T, error)) (T, error) {
	if client, ok := c.clients.Load(key); ok {
		return client.(T), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if client, ok := c.clients.Load(key); ok {
			return client, nil
		}
		client, err := build()
		if err != nil {
			return nil, err
		}
		c.clients.Store(key, client)
		return client, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Len reports how many clients are cached
func (c *Cache[T]) Len() int {
	n := 0
	c.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Delete evicts the client for key
func (c *Cache[T]) Delete(key string) {
	c.clients.Delete(key)
}
