// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract binds an ABI to a deployed contract so encrypted handles
// and proofs can be submitted to it.
package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

var (
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrNoBackend           = errors.New("contract backend not configured")
)

// Backend executes read-only calls and state-changing transactions.
type Backend interface {
	// Call executes data against to without creating a transaction.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// Transact signs and sends data to to and waits for its receipt.
	Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// Contract is an ABI bound to an address.
type Contract struct {
	address common.Address
	abi     abi.ABI
	backend Backend
}

func New(address common.Address, contractABI abi.ABI, backend Backend) *Contract {
	return &Contract{
		address: address,
		abi:     contractABI,
		backend: backend,
	}
}

// Parse binds the JSON ABI definition abiJSON to address.
func Parse(address common.Address, abiJSON string, backend Backend) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return New(address, parsed, backend), nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Transact calls method with args in a transaction. A receipt with a failed
// status is reported as ErrTransactionReverted.
func (c *Contract) Transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	if c.backend == nil {
		return nil, ErrNoBackend
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	receipt, err := c.backend.Transact(ctx, c.address, data)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in tx %s", ErrTransactionReverted, method, receipt.TxHash)
	}
	return receipt, nil
}

// Call invokes the view method with args and returns its unpacked outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	if c.backend == nil {
		return nil, ErrNoBackend
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := c.backend.Call(ctx, c.address, data)
	if err != nil {
		return nil, err
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}
