// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheSingleKey(t *testing.T) {
	tests := []struct {
		name          string
		advance       time.Duration
		invalidate    bool
		expectedCount int
	}{
		{
			name:          "fresh cache, fetch",
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			advance:       30 * time.Second,
			expectedCount: 1,
		},
		{
			name:          "invalidate=true, fetch",
			invalidate:    true,
			expectedCount: 2,
		},
		{
			name:          "ttl expired, fetch",
			advance:       2 * time.Minute,
			expectedCount: 3,
		},
	}

	now := time.Unix(1_700_000_000, 0)
	cache := NewTTLCache[string, int](time.Minute)
	cache.now = func() time.Time { return now }

	fetchCount := 0
	fetchFunc := func(_ string) (int, error) {
		fetchCount++
		return 42, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			now = now.Add(tt.advance)

			val, err := cache.Get("test", fetchFunc, tt.invalidate)
			require.NoError(err)
			require.Equal(42, val)
			require.Equal(tt.expectedCount, fetchCount)
		})
	}
}
