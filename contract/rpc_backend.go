// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"

	"github.com/luxfi/fhevm/utils"
)

const (
	// If the max base fee is not explicitly set, use 3x the latest base fee.
	defaultBaseFeeFactor = 3

	defaultRPCTimeout        = 10 * time.Second
	defaultInclusionTimeout  = 30 * time.Second
	defaultGasLimitMarginPct = 20
)

var _ Backend = (*RPCBackend)(nil)

// EthClient is the subset of ethclient.Client used by RPCBackend.
type EthClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RPCBackend sends EIP-1559 transactions signed with a local key over
// JSON-RPC.
type RPCBackend struct {
	client  EthClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  log.Logger

	nonceLock    sync.Mutex
	nonceLoaded  bool
	currentNonce uint64

	// InclusionTimeout bounds the wait for a receipt.
	InclusionTimeout time.Duration
	// MaxPriorityFeePerGas caps the suggested tip when non-nil.
	MaxPriorityFeePerGas *big.Int
}

// Dial connects to rpcURL and reads its chain id.
func Dial(ctx context.Context, logger log.Logger, rpcURL string, key *ecdsa.PrivateKey) (*RPCBackend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		logger.Error("Failed to dial rpc endpoint", log.Err(err))
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Error("Failed to get chain ID from rpc endpoint", log.Err(err))
		return nil, err
	}
	return NewRPCBackend(logger, client, key, chainID), nil
}

func NewRPCBackend(logger log.Logger, client EthClient, key *ecdsa.PrivateKey, chainID *big.Int) *RPCBackend {
	return &RPCBackend{
		client:           client,
		key:              key,
		from:             common.PubkeyToAddress(key.PublicKey),
		chainID:          new(big.Int).Set(chainID),
		logger:           logger,
		InclusionTimeout: defaultInclusionTimeout,
	}
}

// From returns the sending account.
func (b *RPCBackend) From() common.Address {
	return b.from
}

func (b *RPCBackend) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()
	return b.client.CallContract(callCtx, ethereum.CallMsg{
		From: b.from,
		To:   &to,
		Data: data,
	}, nil)
}

// Transact builds, signs and broadcasts a dynamic-fee transaction, then
// waits for its receipt. The max fee is the latest base fee times
// defaultBaseFeeFactor plus the tip.
func (b *RPCBackend) Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	header, err := b.client.HeaderByNumber(rpcCtx, nil)
	if err != nil {
		b.logger.Error("Failed to get latest header", log.Err(err))
		return nil, err
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	maxBaseFee := new(big.Int).Mul(baseFee, big.NewInt(defaultBaseFeeFactor))

	gasTipCap, err := b.client.SuggestGasTipCap(rpcCtx)
	if err != nil {
		b.logger.Error("Failed to get gas tip cap", log.Err(err))
		return nil, err
	}
	if b.MaxPriorityFeePerGas != nil && gasTipCap.Cmp(b.MaxPriorityFeePerGas) > 0 {
		gasTipCap = b.MaxPriorityFeePerGas
	}
	gasFeeCap := new(big.Int).Add(maxBaseFee, gasTipCap)

	gas, err := b.client.EstimateGas(rpcCtx, ethereum.CallMsg{
		From: b.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		b.logger.Error("Failed to estimate gas", log.Err(err))
		return nil, err
	}
	gas += gas * defaultGasLimitMarginPct / 100

	// Synchronize nonce access so that transactions are sent in nonce order.
	b.nonceLock.Lock()
	if !b.nonceLoaded {
		b.currentNonce, err = b.client.PendingNonceAt(rpcCtx, b.from)
		if err != nil {
			b.nonceLock.Unlock()
			b.logger.Error("Failed to get pending nonce", log.Err(err))
			return nil, err
		}
		b.nonceLoaded = true
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     b.currentNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		b.nonceLock.Unlock()
		b.logger.Error("Failed to sign transaction", log.Err(err))
		return nil, err
	}

	b.logger.Info("Sending transaction",
		log.Stringer("txID", signedTx.Hash()),
		log.Stringer("to", to),
	)
	if err := b.client.SendTransaction(rpcCtx, signedTx); err != nil {
		// The node may have seen transactions we did not send; reload next time.
		b.nonceLoaded = false
		b.nonceLock.Unlock()
		b.logger.Error("Failed to send transaction", log.Err(err))
		return nil, err
	}
	b.currentNonce++
	b.nonceLock.Unlock()

	return b.waitForReceipt(ctx, signedTx.Hash())
}

func (b *RPCBackend) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	operation := func() (err error) {
		callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		receipt, err = b.client.TransactionReceipt(callCtx, txHash)
		return err
	}
	if err := utils.WithRetriesTimeout(ctx, b.logger, operation, b.InclusionTimeout); err != nil {
		b.logger.Error("Failed to get transaction receipt",
			log.Stringer("txID", txHash),
			log.Err(err),
		)
		return nil, err
	}
	return receipt, nil
}
