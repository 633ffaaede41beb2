// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"
)

var (
	_ Signer = (*LocalSigner)(nil)

	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer is a wallet-style signing capability.
type Signer interface {
	// Address returns the account the signer signs for.
	Address(ctx context.Context) (common.Address, error)

	// ChainID returns the chain id of the network the signer is connected to.
	ChainID(ctx context.Context) (*big.Int, error)

	// SignMessage signs msg using the personal-message (EIP-191) scheme.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)

	// SignTypedData signs EIP-712 typed structured data.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// LocalSigner signs with an in-process secp256k1 key. Signatures use the
// 27/28 recovery id convention of wallet software.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewLocalSigner creates a new local signer
func NewLocalSigner(key *ecdsa.PrivateKey, chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: common.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

// NewLocalSignerFromHex parses a hex-encoded private key, with or without
// the 0x prefix.
func NewLocalSignerFromHex(hexKey string, chainID *big.Int) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(sanitizeHex(hexKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewLocalSigner(key, chainID), nil
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner(chainID *big.Int) (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(key, chainID), nil
}

func (s *LocalSigner) Address(context.Context) (common.Address, error) {
	return s.address, nil
}

func (s *LocalSigner) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.chainID), nil
}

// PrivateKey returns the signing key.
func (s *LocalSigner) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

func (s *LocalSigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	return s.sign(accounts.TextHash(msg))
}

func (s *LocalSigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return s.sign(hash)
}

func (s *LocalSigner) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMessageSigner returns the account that produced sig over msg with
// SignMessage.
func RecoverMessageSigner(msg, sig []byte) (common.Address, error) {
	return recoverAddress(accounts.TextHash(msg), sig)
}

// RecoverTypedDataSigner returns the account that produced sig over data
// with SignTypedData.
func RecoverTypedDataSigner(data apitypes.TypedData, sig []byte) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return recoverAddress(hash, sig)
}

func recoverAddress(digest, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return common.PubkeyToAddress(*pub), nil
}
