// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe provides encryption instances backed by the lattice FHE
// library. An Instance only holds the gateway's public key and can encrypt
// but never decrypt; the secret key lives in the gateway's Keyring.
package fhe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tfhe "github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/utils"
)

const (
	// HandleVersion is stored in the last byte of every handle.
	HandleVersion byte = 0

	limbBits = 64
)

var (
	_ fhevm.Instance     = (*Instance)(nil)
	_ fhevm.InputBuilder = (*inputBuilder)(nil)

	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrTooManyValues     = errors.New("too many values in one input")
	ErrInvalidACLAddress = errors.New("invalid ACL address")
	ErrChainMismatch     = errors.New("gateway serves a different chain")
	ErrACLMismatch       = errors.New("gateway serves a different ACL contract")
)

// typeCodes are the encrypted-type identifiers embedded in handles.
var typeCodes = map[fhevm.Width]byte{
	fhevm.Uint8:   2,
	fhevm.Uint16:  3,
	fhevm.Uint32:  4,
	fhevm.Uint64:  5,
	fhevm.Uint128: 6,
	fhevm.Uint256: 8,
}

// WidthFromHandle returns the width encoded in handle.
func WidthFromHandle(handle common.Hash) (fhevm.Width, bool) {
	for w, code := range typeCodes {
		if handle[30] == code {
			return w, true
		}
	}
	return 0, false
}

func newParameters() (tfhe.Parameters, error) {
	params, err := tfhe.NewParametersFromLiteral(tfhe.PN10QP27)
	if err != nil {
		return tfhe.Parameters{}, fmt.Errorf("failed to create parameters: %w", err)
	}
	return params, nil
}

// NewFactory returns an InstanceFactory that downloads the public key from
// the configured gateway, retrying while the gateway starts. The gateway must
// serve the requested chain, and the requested ACL contract when one is set.
func NewFactory(logger log.Logger, client *http.Client) fhevm.InstanceFactory {
	return func(ctx context.Context, cfg fhevm.InstanceConfig) (fhevm.Instance, error) {
		if cfg.GatewayURL == "" {
			return nil, fhevm.ErrMissingGatewayURL
		}
		start := time.Now()
		var keys *fhevm.KeysData
		err := utils.WithMaxRetries(ctx, logger, func() error {
			var err error
			keys, err = fhevm.FetchGatewayKeys(ctx, client, cfg.GatewayURL)
			return err
		}, utils.DefaultMaxRetries, utils.DefaultBaseDelay)
		if err != nil {
			logger.Error("Failed to fetch gateway keys",
				log.Uint64("chainID", cfg.ChainID),
				log.Err(err),
			)
			return nil, fmt.Errorf("failed to fetch gateway keys: %w", err)
		}
		if keys.ChainID != cfg.ChainID {
			return nil, fmt.Errorf("%w: want %d, gateway has %d", ErrChainMismatch, cfg.ChainID, keys.ChainID)
		}
		if cfg.ACLAddress != "" {
			acl, err := parseACL(cfg.ACLAddress)
			if err != nil {
				return nil, err
			}
			if acl != keys.ACLAddress {
				return nil, fmt.Errorf("%w: want %s, gateway has %s", ErrACLMismatch, acl, keys.ACLAddress)
			}
		}
		cfg.ACLAddress = keys.ACLAddress.Hex()
		instance, err := NewInstance(cfg, keys.PublicKey)
		if err != nil {
			return nil, err
		}
		logger.Info("Built encryption instance",
			log.Uint64("chainID", cfg.ChainID),
			log.Stringer("acl", instance.acl),
			log.Stringer("elapsed", time.Since(start)),
		)
		return instance, nil
	}
}

// NewKeyringFactory returns an InstanceFactory that encrypts under keys.
// It serves a gateway running in the same process.
func NewKeyringFactory(logger log.Logger, keys *Keyring) fhevm.InstanceFactory {
	return func(ctx context.Context, cfg fhevm.InstanceConfig) (fhevm.Instance, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.ChainID != keys.chainID {
			return nil, fmt.Errorf("%w: want %d, gateway has %d", ErrChainMismatch, cfg.ChainID, keys.chainID)
		}
		logger.Debug("Using in-process gateway keys",
			log.Uint64("chainID", cfg.ChainID),
		)
		return keys.Instance(), nil
	}
}

// Instance encrypts inputs bound to one chain and ACL contract under the
// gateway's public key.
type Instance struct {
	chainID   uint64
	acl       common.Address
	publicKey []byte

	lock      sync.Mutex
	encryptor *tfhe.BitwisePublicEncryptor
}

// NewInstance builds an encrypt-only instance from a serialized public key.
// An empty ACLAddress binds handles to the zero address.
func NewInstance(cfg fhevm.InstanceConfig, publicKey []byte) (*Instance, error) {
	acl, err := parseACL(cfg.ACLAddress)
	if err != nil {
		return nil, err
	}
	params, err := newParameters()
	if err != nil {
		return nil, err
	}
	pk := new(tfhe.PublicKey)
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &Instance{
		chainID:   cfg.ChainID,
		acl:       acl,
		publicKey: append([]byte(nil), publicKey...),
		encryptor: tfhe.NewBitwisePublicEncryptor(params, pk),
	}, nil
}

func parseACL(address string) (common.Address, error) {
	if address == "" {
		return common.Address{}, nil
	}
	if !fhevm.IsValidAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidACLAddress, address)
	}
	return common.HexToAddress(address), nil
}

func (i *Instance) ChainID() uint64 {
	return i.chainID
}

func (i *Instance) ACLAddress() common.Address {
	return i.acl
}

func (i *Instance) PublicKey() []byte {
	out := make([]byte, len(i.publicKey))
	copy(out, i.publicKey)
	return out
}

func (i *Instance) CreateEncryptedInput() fhevm.InputBuilder {
	return &inputBuilder{instance: i}
}

// encryptLimbs encrypts value 64 bits at a time, least significant first.
func (i *Instance) encryptLimbs(width fhevm.Width, limbs []uint64) ([]byte, error) {
	limbType := tfhe.FheUint64
	switch width {
	case fhevm.Uint8:
		limbType = tfhe.FheUint8
	case fhevm.Uint16:
		limbType = tfhe.FheUint16
	case fhevm.Uint32:
		limbType = tfhe.FheUint32
	}

	encoded := make([][]byte, len(limbs))
	i.lock.Lock()
	defer i.lock.Unlock()
	for idx, limb := range limbs {
		ct, err := i.encryptor.EncryptUint64(limb, limbType)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt limb %d: %w", idx, err)
		}
		b, err := ct.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ciphertext: %w", err)
		}
		encoded[idx] = b
	}
	return encodeLimbs(encoded), nil
}

func limbCount(w fhevm.Width) int {
	return (int(w) + limbBits - 1) / limbBits
}
