// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceCacheIdentity(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	factory := &countingFactory{}
	instances := NewInstanceCache(factory.build)

	a1, err := instances.GetOrCreate(ctx, InstanceConfig{ChainID: 1})
	require.NoError(err)
	a2, err := instances.GetOrCreate(ctx, InstanceConfig{ChainID: 1})
	require.NoError(err)
	b, err := instances.GetOrCreate(ctx, InstanceConfig{ChainID: 2})
	require.NoError(err)

	require.Same(a1, a2)
	require.NotSame(a1, b)
	require.Equal(int32(2), factory.calls.Load())
	require.Equal(2, instances.Len())

	got, ok := instances.Get(2)
	require.True(ok)
	require.Same(b, got)
	_, ok = instances.Get(3)
	require.False(ok)
}

// A hit returns the first instance built for the chain even when the rest
// of the config differs.
func TestInstanceCacheKeysOnChainIDOnly(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	factory := &countingFactory{}
	instances := NewInstanceCache(factory.build)

	first, err := instances.GetOrCreate(ctx, InstanceConfig{
		ChainID:    DefaultChainID,
		GatewayURL: "https://gateway-a.example",
		ACLAddress: "0x1111111111111111111111111111111111111111",
	})
	require.NoError(err)
	second, err := instances.GetOrCreate(ctx, InstanceConfig{
		ChainID:    DefaultChainID,
		GatewayURL: "https://gateway-b.example",
		ACLAddress: "0x2222222222222222222222222222222222222222",
	})
	require.NoError(err)

	require.Same(first, second)
	require.Equal(int32(1), factory.calls.Load())
	require.Equal("https://gateway-a.example", second.(*fakeInstance).cfg.GatewayURL)
}

func TestInstanceCacheRemoveAndClear(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	factory := &countingFactory{}
	instances := NewInstanceCache(factory.build)

	for _, id := range []uint64{1, 2, 3} {
		_, err := instances.GetOrCreate(ctx, InstanceConfig{ChainID: id})
		require.NoError(err)
	}
	require.Equal(3, instances.Len())

	instances.Remove(2)
	require.Equal(2, instances.Len())
	_, err := instances.GetOrCreate(ctx, InstanceConfig{ChainID: 2})
	require.NoError(err)
	require.Equal(int32(4), factory.calls.Load())

	instances.Clear()
	require.Zero(instances.Len())
	_, err = instances.GetOrCreate(ctx, InstanceConfig{ChainID: 1})
	require.NoError(err)
	require.Equal(int32(5), factory.calls.Load())
}

func TestInstanceCacheErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no factory", func(t *testing.T) {
		require := require.New(t)
		_, err := NewInstanceCache(nil).GetOrCreate(ctx, InstanceConfig{ChainID: 1})
		require.ErrorIs(err, ErrNoInstanceFactory)
	})

	t.Run("failure not cached", func(t *testing.T) {
		require := require.New(t)
		errBoom := errors.New("boom")
		factory := &countingFactory{err: errBoom}
		instances := NewInstanceCache(factory.build)

		_, err := instances.GetOrCreate(ctx, InstanceConfig{ChainID: 1})
		require.ErrorIs(err, errBoom)
		require.Zero(instances.Len())

		factory.err = nil
		_, err = instances.GetOrCreate(ctx, InstanceConfig{ChainID: 1})
		require.NoError(err)
		require.Equal(int32(2), factory.calls.Load())
	})
}

func TestInstanceCacheConcurrentMisses(t *testing.T) {
	require := require.New(t)

	factory := &countingFactory{}
	instances := NewInstanceCache(factory.build)

	const n = 16
	results := make([]Instance, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := instances.GetOrCreate(context.Background(), InstanceConfig{ChainID: 7})
			if err == nil {
				results[i] = inst
			}
		}(i)
	}
	wg.Wait()

	for _, inst := range results {
		require.Same(results[0], inst)
	}
	require.Equal(int32(1), factory.calls.Load())
}
