// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"github.com/luxfi/geth/common/lru"
	"golang.org/x/sync/singleflight"
)

// LRUCache is a size-bounded cache for immutable values, such as the
// plaintext behind a ciphertext handle. Concurrent misses on one key share
// a single fetch.
type LRUCache[K comparable, V any] struct {
	cache   *lru.Cache[K, V]
	sfGroup singleflight.Group
}

func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		cache: lru.NewCache[K, V](size),
	}
}

// Get returns the cached value for key, or fetches and caches it with
// fetchFunc. Failed fetches are not cached.
// If [invalidate] is true, the value is dropped before fetching.
func (c *LRUCache[K, V]) Get(key K, fetchFunc func(K) (V, error), invalidate bool) (V, error) {
	if invalidate {
		c.cache.Remove(key)
	} else if value, found := c.cache.Get(key); found {
		return value, nil
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		value, err := fetchFunc(key)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, value)
		return value, nil
	})
	if err != nil {
		return *new(V), err
	}
	return v.(V), nil
}

// Len returns the number of cached values.
func (c *LRUCache[K, V]) Len() int {
	return c.cache.Len()
}

// Purge drops every cached value.
func (c *LRUCache[K, V]) Purge() {
	c.cache.Purge()
}
