// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"
)

// FetchFunc is the function signature for fetching values
type FetchFunc[K comparable, V any] func(key K) (V, error)

// Registry is an unbounded, thread-safe keyed store with single-flight
// creation. Entries never expire; they are removed only by Remove or Clear.
type Registry[K comparable, V any] struct {
	lk      sync.RWMutex
	entries map[K]V

	// Single-flight mechanism
	inflight   map[K]*call[V]
	inflightLk sync.Mutex
}

// call represents an in-flight fetch operation
type call[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries:  make(map[K]V),
		inflight: make(map[K]*call[V]),
	}
}

// Get returns the entry stored under key, if any.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	val, ok := r.entries[key]
	return val, ok
}

// GetOrCreate returns the entry stored under key or creates it with
// fetchFunc. If multiple goroutines miss on the same key concurrently, only
// one fetch occurs and all of them observe its result. Failed fetches are
// not stored.
func (r *Registry[K, V]) GetOrCreate(key K, fetchFunc FetchFunc[K, V]) (V, error) {
	// Fast path: check if it's already stored
	if val, ok := r.Get(key); ok {
		return val, nil
	}

	r.inflightLk.Lock()
	if cl, ok := r.inflight[key]; ok {
		// Another goroutine is already fetching this key
		r.inflightLk.Unlock()
		cl.wg.Wait()
		return cl.val, cl.err
	}

	// Re-check under the inflight lock: a fetch may have completed between
	// the fast path and here.
	if val, ok := r.Get(key); ok {
		r.inflightLk.Unlock()
		return val, nil
	}

	cl := &call[V]{}
	cl.wg.Add(1)
	r.inflight[key] = cl
	r.inflightLk.Unlock()

	val, err := fetchFunc(key)
	cl.val = val
	cl.err = err

	if err == nil {
		r.lk.Lock()
		r.entries[key] = val
		r.lk.Unlock()
	}

	r.inflightLk.Lock()
	delete(r.inflight, key)
	r.inflightLk.Unlock()

	cl.wg.Done()

	return val, err
}

// Remove deletes the entry stored under key.
func (r *Registry[K, V]) Remove(key K) {
	r.lk.Lock()
	defer r.lk.Unlock()
	delete(r.entries, key)
}

// Clear deletes every entry.
func (r *Registry[K, V]) Clear() {
	r.lk.Lock()
	defer r.lk.Unlock()
	clear(r.entries)
}

// Len returns the current number of entries
func (r *Registry[K, V]) Len() int {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return len(r.entries)
}
