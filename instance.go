// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm/cache"
)

// Instance is an encryption instance for one chain. It holds the network's
// public key material and knows how to encode encrypted inputs for it.
type Instance interface {
	// CreateEncryptedInput returns a fresh builder for one encrypted input.
	CreateEncryptedInput() InputBuilder

	// PublicKey returns the serialized network public key.
	PublicKey() []byte
}

// InputBuilder accumulates plaintext values and encrypts them in one shot.
// Widths up to 32 bits take native integers, wider values take uint256.
type InputBuilder interface {
	Add8(v uint8) InputBuilder
	Add16(v uint16) InputBuilder
	Add32(v uint32) InputBuilder
	Add64(v *uint256.Int) InputBuilder
	Add128(v *uint256.Int) InputBuilder
	Add256(v *uint256.Int) InputBuilder

	// Encrypt finalizes the input. It reports any error recorded while
	// values were added.
	Encrypt() (*EncryptedInput, error)
}

// EncryptedInput is the raw output of an InputBuilder.
type EncryptedInput struct {
	Data       []byte
	Handles    []common.Hash
	InputProof []byte
}

// InstanceFactory constructs an Instance. Construction is expected to be
// expensive, which is why instances are cached per chain.
type InstanceFactory func(ctx context.Context, cfg InstanceConfig) (Instance, error)

// InstanceCache maps chain ids to encryption instances. Entries are created
// on first request and reused until removed.
//
// Lookups are keyed by chain id only: a hit returns the cached instance even
// when the requested NetworkURL, GatewayURL or ACLAddress differ from the
// config the instance was built with.
type InstanceCache struct {
	factory   InstanceFactory
	instances *cache.Registry[uint64, Instance]
}

func NewInstanceCache(factory InstanceFactory) *InstanceCache {
	return &InstanceCache{
		factory:   factory,
		instances: cache.NewRegistry[uint64, Instance](),
	}
}

// GetOrCreate returns the instance for cfg.ChainID, building it on a miss.
// Concurrent misses for the same chain id share one construction.
func (c *InstanceCache) GetOrCreate(ctx context.Context, cfg InstanceConfig) (Instance, error) {
	return c.instances.GetOrCreate(cfg.ChainID, func(uint64) (Instance, error) {
		if c.factory == nil {
			return nil, ErrNoInstanceFactory
		}
		return c.factory(ctx, cfg)
	})
}

// Get returns the cached instance for chainID.
func (c *InstanceCache) Get(chainID uint64) (Instance, bool) {
	return c.instances.Get(chainID)
}

// Remove drops the instance cached for chainID.
func (c *InstanceCache) Remove(chainID uint64) {
	c.instances.Remove(chainID)
}

// Clear drops every cached instance.
func (c *InstanceCache) Clear() {
	c.instances.Clear()
}

// Len returns the number of cached instances.
func (c *InstanceCache) Len() int {
	return c.instances.Len()
}
