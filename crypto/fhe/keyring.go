// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"
	"math/big"
	"sync"

	tfhe "github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm"
)

// Keyring is the gateway side of a key pair. It decrypts what any Instance
// built from its public key encrypts.
type Keyring struct {
	chainID   uint64
	acl       common.Address
	params    tfhe.Parameters
	pk        *tfhe.PublicKey
	publicKey []byte

	lock      sync.Mutex
	decryptor *tfhe.BitwiseDecryptor
}

// GenerateKeyring creates a fresh key pair for cfg's chain and ACL contract.
func GenerateKeyring(cfg fhevm.InstanceConfig) (*Keyring, error) {
	acl, err := parseACL(cfg.ACLAddress)
	if err != nil {
		return nil, err
	}
	params, err := newParameters()
	if err != nil {
		return nil, err
	}
	sk, pk := tfhe.NewKeyGenerator(params).GenKeyPair()
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return &Keyring{
		chainID:   cfg.ChainID,
		acl:       acl,
		params:    params,
		pk:        pk,
		publicKey: pkBytes,
		decryptor: tfhe.NewBitwiseDecryptor(params, sk),
	}, nil
}

func (k *Keyring) ChainID() uint64 {
	return k.chainID
}

func (k *Keyring) ACLAddress() common.Address {
	return k.acl
}

func (k *Keyring) PublicKey() []byte {
	out := make([]byte, len(k.publicKey))
	copy(out, k.publicKey)
	return out
}

// Instance returns an encrypt-only instance under the keyring's public key.
func (k *Keyring) Instance() *Instance {
	return &Instance{
		chainID:   k.chainID,
		acl:       k.acl,
		publicKey: k.PublicKey(),
		encryptor: tfhe.NewBitwisePublicEncryptor(k.params, k.pk),
	}
}

// Decrypt recovers the plaintext of one value ciphertext as produced by an
// Instance and split by SplitInput.
func (k *Keyring) Decrypt(ciphertext []byte, width fhevm.Width) (*big.Int, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: %s", fhevm.ErrUnsupportedWidth, width)
	}
	limbs, err := decodeLimbs(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(limbs) != limbCount(width) {
		return nil, fmt.Errorf("%w: %d limbs for %s", ErrInvalidCiphertext, len(limbs), width)
	}

	value := new(big.Int)
	for idx := len(limbs) - 1; idx >= 0; idx-- {
		ct := new(tfhe.BitCiphertext)
		if err := ct.UnmarshalBinary(limbs[idx]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
		}
		k.lock.Lock()
		limb := k.decryptor.DecryptUint64(ct)
		k.lock.Unlock()

		value.Lsh(value, limbBits)
		value.Or(value, new(big.Int).SetUint64(limb))
	}
	if !width.Fits(value) {
		return nil, fmt.Errorf("%w: plaintext exceeds %s", ErrInvalidCiphertext, width)
	}
	return value, nil
}
