// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"

	"github.com/luxfi/fhevm"
)

// maxValues bounds the values in one input so the count fits the proof's
// single length byte.
const maxValues = 255

type plainValue struct {
	width fhevm.Width
	limbs []uint64
}

type inputBuilder struct {
	instance *Instance
	values   []plainValue
}

func (b *inputBuilder) add(width fhevm.Width, v *uint256.Int) fhevm.InputBuilder {
	limbs := make([]uint64, limbCount(width))
	copy(limbs, v[:])
	b.values = append(b.values, plainValue{width: width, limbs: limbs})
	return b
}

func (b *inputBuilder) Add8(v uint8) fhevm.InputBuilder {
	return b.add(fhevm.Uint8, uint256.NewInt(uint64(v)))
}

func (b *inputBuilder) Add16(v uint16) fhevm.InputBuilder {
	return b.add(fhevm.Uint16, uint256.NewInt(uint64(v)))
}

func (b *inputBuilder) Add32(v uint32) fhevm.InputBuilder {
	return b.add(fhevm.Uint32, uint256.NewInt(uint64(v)))
}

func (b *inputBuilder) Add64(v *uint256.Int) fhevm.InputBuilder {
	return b.add(fhevm.Uint64, v)
}

func (b *inputBuilder) Add128(v *uint256.Int) fhevm.InputBuilder {
	return b.add(fhevm.Uint128, v)
}

func (b *inputBuilder) Add256(v *uint256.Int) fhevm.InputBuilder {
	return b.add(fhevm.Uint256, v)
}

// Encrypt encrypts every added value. Data is the RLP list of value
// ciphertexts, one handle is derived per value, and the proof commits to
// the handles and the data.
func (b *inputBuilder) Encrypt() (*fhevm.EncryptedInput, error) {
	if len(b.values) > maxValues {
		return nil, fmt.Errorf("%w: %d", ErrTooManyValues, len(b.values))
	}

	ciphertexts := make([][]byte, len(b.values))
	handles := make([]common.Hash, len(b.values))
	for idx, v := range b.values {
		ct, err := b.instance.encryptLimbs(v.width, v.limbs)
		if err != nil {
			return nil, err
		}
		ciphertexts[idx] = ct
		handles[idx] = DeriveHandle(ct, b.instance.acl, b.instance.chainID, idx, v.width)
	}

	data, err := rlp.EncodeToBytes(ciphertexts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	return &fhevm.EncryptedInput{
		Data:       data,
		Handles:    handles,
		InputProof: buildProof(handles, data),
	}, nil
}

// DeriveHandle computes keccak256(ciphertext ‖ acl ‖ chainID ‖ index) and
// stamps the type code and handle version into the last two bytes.
func DeriveHandle(ciphertext []byte, acl common.Address, chainID uint64, index int, width fhevm.Width) common.Hash {
	chain := common.BigToHash(new(big.Int).SetUint64(chainID))
	handle := common.BytesToHash(crypto.Keccak256(
		ciphertext,
		acl.Bytes(),
		chain.Bytes(),
		[]byte{byte(index)},
	))
	handle[30] = typeCodes[width]
	handle[31] = HandleVersion
	return handle
}

func buildProof(handles []common.Hash, data []byte) []byte {
	proof := make([]byte, 0, 1+len(handles)*common.HashLength+common.HashLength)
	proof = append(proof, byte(len(handles)))
	for _, h := range handles {
		proof = append(proof, h.Bytes()...)
	}
	return append(proof, crypto.Keccak256(data)...)
}

// SplitInput returns the per-value ciphertexts packed in an input's Data.
func SplitInput(data []byte) ([][]byte, error) {
	var ciphertexts [][]byte
	if err := rlp.DecodeBytes(data, &ciphertexts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return ciphertexts, nil
}

// VerifyInput checks that proof commits to handles and data, and that each
// handle was derived from its ciphertext for acl and chainID. It returns the
// per-value ciphertexts in handle order.
func VerifyInput(data []byte, handles []common.Hash, proof []byte, acl common.Address, chainID uint64) ([][]byte, error) {
	if len(handles) > maxValues {
		return nil, fmt.Errorf("%w: %d", ErrTooManyValues, len(handles))
	}
	if !bytes.Equal(proof, buildProof(handles, data)) {
		return nil, fmt.Errorf("%w: proof mismatch", ErrInvalidCiphertext)
	}
	ciphertexts, err := SplitInput(data)
	if err != nil {
		return nil, err
	}
	if len(ciphertexts) != len(handles) {
		return nil, fmt.Errorf("%w: %d ciphertexts for %d handles", ErrInvalidCiphertext, len(ciphertexts), len(handles))
	}
	for idx, h := range handles {
		width, ok := WidthFromHandle(h)
		if !ok || DeriveHandle(ciphertexts[idx], acl, chainID, idx, width) != h {
			return nil, fmt.Errorf("%w: handle %d does not match its ciphertext", ErrInvalidCiphertext, idx)
		}
	}
	return ciphertexts, nil
}

func encodeLimbs(limbs [][]byte) []byte {
	// Encoding a list of byte slices cannot fail.
	out, _ := rlp.EncodeToBytes(limbs)
	return out
}

func decodeLimbs(ciphertext []byte) ([][]byte, error) {
	var limbs [][]byte
	if err := rlp.DecodeBytes(ciphertext, &limbs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return limbs, nil
}
