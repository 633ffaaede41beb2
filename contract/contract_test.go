// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"context"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

const counterABI = `[
	{"type":"function","name":"add","stateMutability":"nonpayable",
	 "inputs":[{"name":"handle","type":"bytes32"},{"name":"proof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

type fakeBackend struct {
	to      common.Address
	data    []byte
	out     []byte
	status  uint64
	callErr error
}

func (f *fakeBackend) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	f.to, f.data = to, data
	return f.out, f.callErr
}

func (f *fakeBackend) Transact(_ context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	f.to, f.data = to, data
	return &types.Receipt{Status: f.status, TxHash: common.Hash{0xab}}, nil
}

func TestContractTransact(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	address := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	c, err := Parse(address, counterABI, backend)
	require.NoError(err)
	require.Equal(address, c.Address())

	handle := common.Hash{0x01, 0x02}
	proof := []byte{0xde, 0xad}
	receipt, err := c.Transact(ctx, "add", handle, proof)
	require.NoError(err)
	require.Equal(common.Hash{0xab}, receipt.TxHash)
	require.Equal(address, backend.to)

	method := c.ABI().Methods["add"]
	require.Equal(method.ID, backend.data[:4])
	args, err := method.Inputs.Unpack(backend.data[4:])
	require.NoError(err)
	require.Equal([32]byte(handle), args[0])
	require.Equal(proof, args[1])

	backend.status = types.ReceiptStatusFailed
	_, err = c.Transact(ctx, "add", handle, proof)
	require.ErrorIs(err, ErrTransactionReverted)

	_, err = c.Transact(ctx, "missing")
	require.Error(err)
}

func TestContractCall(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	backend := &fakeBackend{}
	c, err := Parse(common.Address{1}, counterABI, backend)
	require.NoError(err)

	out, err := c.ABI().Methods["balanceOf"].Outputs.Pack(big.NewInt(42))
	require.NoError(err)
	backend.out = out

	values, err := c.Call(ctx, "balanceOf", common.Address{2})
	require.NoError(err)
	require.Len(values, 1)
	require.Equal(int64(42), values[0].(*big.Int).Int64())

	_, err = New(common.Address{1}, c.ABI(), nil).Call(ctx, "balanceOf", common.Address{2})
	require.ErrorIs(err, ErrNoBackend)

	_, err = Parse(common.Address{1}, "not json", backend)
	require.Error(err)
}
