// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"
	"github.com/luxfi/math"
)

// EIP-712 domain and schema for re-encryption authorization.
const (
	AuthorizationDomainName    = "Authorization"
	AuthorizationDomainVersion = "1"
	ReencryptPrimaryType       = "Reencrypt"
)

var reencryptTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	ReencryptPrimaryType: {
		{Name: "publicKey", Type: "bytes"},
		{Name: "handle", Type: "uint256"},
	},
}

// PublicKeyMessage is the personal message a user signs to derive their
// re-encryption public key.
func PublicKeyMessage(owner common.Address) []byte {
	return []byte("Generate public key for " + owner.Hex())
}

// GeneratePublicKey derives the per-user public key: the signer's signature
// over PublicKeyMessage of its own address.
func GeneratePublicKey(ctx context.Context, signer Signer) ([]byte, error) {
	owner, err := signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get signer address: %w", err)
	}
	return signer.SignMessage(ctx, PublicKeyMessage(owner))
}

// VerifyPublicKey checks that publicKey was derived by owner.
func VerifyPublicKey(owner common.Address, publicKey []byte) error {
	recovered, err := RecoverMessageSigner(PublicKeyMessage(owner), publicKey)
	if err != nil {
		return err
	}
	if recovered != owner {
		return fmt.Errorf("%w: public key derived by %s, not %s", ErrInvalidSignature, recovered, owner)
	}
	return nil
}

// ReencryptTypedData builds the typed data authorizing re-encryption of
// handle under publicKey, bound to contract on chainID.
func ReencryptTypedData(
	chainID *big.Int,
	contract common.Address,
	handle common.Hash,
	publicKey []byte,
) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       reencryptTypes,
		PrimaryType: ReencryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              AuthorizationDomainName,
			Version:           AuthorizationDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey": publicKey,
			"handle":    handle.Big(),
		},
	}
}

// CreateEIP712Signature signs the Reencrypt authorization for handle and
// publicKey. The domain chain id comes from the signer's network.
func CreateEIP712Signature(
	ctx context.Context,
	signer Signer,
	contract common.Address,
	handle common.Hash,
	publicKey []byte,
) ([]byte, error) {
	chainID, err := signer.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return signer.SignTypedData(ctx, ReencryptTypedData(chainID, contract, handle, publicKey))
}

// RecoverReencryptSigner returns the account that signed the Reencrypt
// authorization.
func RecoverReencryptSigner(
	chainID *big.Int,
	contract common.Address,
	handle common.Hash,
	publicKey []byte,
	signature []byte,
) (common.Address, error) {
	return RecoverTypedDataSigner(ReencryptTypedData(chainID, contract, handle, publicKey), signature)
}
