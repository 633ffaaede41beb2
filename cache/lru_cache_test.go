// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		invalidate    bool
		expectedValue int
		expectedCount int
	}{
		{
			name:          "fresh cache, fetch",
			key:           "test1",
			invalidate:    false,
			expectedValue: 42,
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			key:           "test1",
			invalidate:    false,
			expectedValue: 42,
			expectedCount: 1, // Same count as previous
		},
		{
			name:          "invalidate=true, fetch again",
			key:           "test1",
			invalidate:    true,
			expectedValue: 42,
			expectedCount: 2,
		},
		{
			name:          "different key, fetch",
			key:           "test2",
			invalidate:    false,
			expectedValue: 42,
			expectedCount: 3,
		},
		{
			name:          "capacity exceeded, oldest evicted",
			key:           "test3",
			invalidate:    false,
			expectedValue: 42,
			expectedCount: 4,
		},
	}

	cache := NewLRUCache[string, int](2)
	fetchCount := 0
	fetchFunc := func(key string) (int, error) {
		fetchCount++
		return 42, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			val, err := cache.Get(tt.key, fetchFunc, tt.invalidate)
			require.NoError(err)
			require.Equal(tt.expectedValue, val)
			require.Equal(tt.expectedCount, fetchCount)
			require.LessOrEqual(cache.Len(), 2)
		})
	}
}

func TestLRUCacheErrorNotCached(t *testing.T) {
	require := require.New(t)

	cache := NewLRUCache[string, int](4)
	errFetch := errors.New("gateway down")
	calls := 0

	_, err := cache.Get("h", func(string) (int, error) {
		calls++
		return 0, errFetch
	}, false)
	require.ErrorIs(err, errFetch)
	require.Zero(cache.Len())

	val, err := cache.Get("h", func(string) (int, error) {
		calls++
		return 9, nil
	}, false)
	require.NoError(err)
	require.Equal(9, val)
	require.Equal(2, calls)

	cache.Purge()
	require.Zero(cache.Len())
}

func TestLRUCacheConcurrentMisses(t *testing.T) {
	require := require.New(t)

	cache := NewLRUCache[string, int](4)
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(string) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	const n = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
	)
	results := make([]int, n)
	wg.Add(n)
	started.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			started.Done()
			v, err := cache.Get("h", fetch, false)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	started.Wait()
	require.Eventually(func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(calls.Load(), int32(n))
	for _, v := range results {
		require.Equal(7, v)
	}
	require.Equal(1, cache.Len())
}
