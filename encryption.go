// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// EncryptInput encrypts value at width with instance. Values that do not
// fit the width are rejected, never truncated.
func EncryptInput(ctx context.Context, instance Instance, value *big.Int, width Width) (*EncryptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EncryptionError{Err: err}
	}
	if instance == nil {
		return nil, &EncryptionError{Err: ErrNotInitialized}
	}
	result, err := encryptValue(instance, value, width)
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}
	return result, nil
}

// UserDecrypt decrypts handle through the gateway's signed /decrypt
// endpoint, authorizing the request with signer.
func UserDecrypt(
	ctx context.Context,
	signer Signer,
	contract common.Address,
	handle common.Hash,
	gatewayURL string,
) (*big.Int, error) {
	req, err := authorizeDecrypt(ctx, signer, contract, handle, GeneratePublicKey)
	if err != nil {
		return nil, wrapDecryptionError(err, false)
	}
	value, err := newGatewayClient(gatewayURL, nil).decrypt(ctx, req)
	return value, wrapDecryptionError(err, false)
}

// PublicDecrypt decrypts a publicly decryptable handle. No signature is
// involved.
func PublicDecrypt(
	ctx context.Context,
	contract common.Address,
	handle common.Hash,
	gatewayURL string,
) (*big.Int, error) {
	value, err := newGatewayClient(gatewayURL, nil).publicDecrypt(ctx, PublicDecryptRequest{
		ContractAddress: contract,
		Handle:          handle,
	})
	return value, wrapDecryptionError(err, true)
}

// DecryptData uses the signed path when signer is non-nil and the public
// path otherwise.
func DecryptData(
	ctx context.Context,
	contract common.Address,
	handle common.Hash,
	gatewayURL string,
	signer Signer,
) (*big.Int, error) {
	if signer != nil {
		return UserDecrypt(ctx, signer, contract, handle, gatewayURL)
	}
	return PublicDecrypt(ctx, contract, handle, gatewayURL)
}

func encryptValue(instance Instance, value *big.Int, width Width) (*EncryptResult, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWidth, width)
	}
	if !width.Fits(value) {
		return nil, fmt.Errorf("%w: %v does not fit in %s", ErrValueOutOfRange, value, width)
	}

	input := instance.CreateEncryptedInput()
	switch width {
	case Uint8:
		input.Add8(uint8(value.Uint64()))
	case Uint16:
		input.Add16(uint16(value.Uint64()))
	case Uint32:
		input.Add32(uint32(value.Uint64()))
	default:
		wide, _ := uint256.FromBig(value)
		switch width {
		case Uint64:
			input.Add64(wide)
		case Uint128:
			input.Add128(wide)
		case Uint256:
			input.Add256(wide)
		}
	}

	encrypted, err := input.Encrypt()
	if err != nil {
		return nil, err
	}
	handles := encrypted.Handles
	if handles == nil {
		handles = []common.Hash{}
	}
	return &EncryptResult{
		Data:    encrypted.Data,
		Handles: handles,
		Proof:   encrypted.InputProof,
	}, nil
}
