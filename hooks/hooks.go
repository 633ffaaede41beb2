// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hooks

import (
	"context"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/contract"
)

// ErrNoContract is recorded when a contract hook is called without a
// contract binding.
var ErrNoContract = errors.New("contract not provided")

// Every hook method returns the zero value on failure and records the
// error in the hook's state instead of returning it. Without an
// initialized client a hook records fhevm.ErrClientNotInitialized.

func clientOf(p *Provider) *fhevm.Client {
	if p == nil {
		return nil
	}
	return p.Client()
}

// EncryptHook encrypts values with the provider's client.
type EncryptHook struct {
	Operation[*fhevm.EncryptResult]
	provider *Provider
}

func NewEncryptHook(p *Provider) *EncryptHook {
	return &EncryptHook{provider: p}
}

// UseEncrypt creates an EncryptHook bound to the provider carried by ctx.
func UseEncrypt(ctx context.Context) (*EncryptHook, error) {
	p, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewEncryptHook(p), nil
}

func (h *EncryptHook) Encrypt(ctx context.Context, value *big.Int, width fhevm.Width) *fhevm.EncryptResult {
	result, _ := h.encrypt(ctx, value, width)
	return result
}

func (h *EncryptHook) IsEncrypting() bool {
	return h.InProgress()
}

func (h *EncryptHook) encrypt(ctx context.Context, value *big.Int, width fhevm.Width) (*fhevm.EncryptResult, error) {
	client := clientOf(h.provider)
	if client == nil {
		h.fail(fhevm.ErrClientNotInitialized)
		return nil, fhevm.ErrClientNotInitialized
	}
	return h.run(func() (*fhevm.EncryptResult, error) {
		return client.Encrypt(ctx, value, width)
	})
}

// DecryptHook decrypts handles with the provider's client. Decrypt and
// PublicDecrypt share one state.
type DecryptHook struct {
	Operation[*big.Int]
	provider *Provider
}

func NewDecryptHook(p *Provider) *DecryptHook {
	return &DecryptHook{provider: p}
}

// UseDecrypt creates a DecryptHook bound to the provider carried by ctx.
func UseDecrypt(ctx context.Context) (*DecryptHook, error) {
	p, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewDecryptHook(p), nil
}

func (h *DecryptHook) Decrypt(ctx context.Context, params fhevm.DecryptParams) *big.Int {
	client := clientOf(h.provider)
	if client == nil {
		h.fail(fhevm.ErrClientNotInitialized)
		return nil
	}
	result, _ := h.run(func() (*big.Int, error) {
		return client.Decrypt(ctx, params)
	})
	return result
}

func (h *DecryptHook) PublicDecrypt(ctx context.Context, contractAddress common.Address, handle common.Hash) *big.Int {
	client := clientOf(h.provider)
	if client == nil {
		h.fail(fhevm.ErrClientNotInitialized)
		return nil
	}
	result, _ := h.run(func() (*big.Int, error) {
		return client.PublicDecrypt(ctx, fhevm.PublicDecryptParams{
			ContractAddress: contractAddress,
			Handle:          handle,
		})
	})
	return result
}

func (h *DecryptHook) IsDecrypting() bool {
	return h.InProgress()
}

// ContractHook sends transactions to and reads from bound contracts. Call
// and Read share one state; Result holds a *types.Receipt or []any.
type ContractHook struct {
	Operation[any]
	provider *Provider
}

func NewContractHook(p *Provider) *ContractHook {
	return &ContractHook{provider: p}
}

// UseContract creates a ContractHook bound to the provider carried by ctx.
func UseContract(ctx context.Context) (*ContractHook, error) {
	p, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewContractHook(p), nil
}

// Call invokes method in a transaction and returns its receipt.
func (h *ContractHook) Call(ctx context.Context, c *contract.Contract, method string, args ...any) *types.Receipt {
	if clientOf(h.provider) == nil {
		h.fail(fhevm.ErrClientNotInitialized)
		return nil
	}
	result, _ := h.run(func() (any, error) {
		if c == nil {
			return nil, ErrNoContract
		}
		receipt, err := c.Transact(ctx, method, args...)
		if err != nil {
			return nil, err
		}
		return receipt, nil
	})
	receipt, _ := result.(*types.Receipt)
	return receipt
}

// Read invokes the view method and returns its outputs.
func (h *ContractHook) Read(ctx context.Context, c *contract.Contract, method string, args ...any) []any {
	if clientOf(h.provider) == nil {
		h.fail(fhevm.ErrClientNotInitialized)
		return nil
	}
	result, _ := h.run(func() (any, error) {
		if c == nil {
			return nil, ErrNoContract
		}
		values, err := c.Call(ctx, method, args...)
		if err != nil {
			return nil, err
		}
		return values, nil
	})
	values, _ := result.([]any)
	return values
}

func (h *ContractHook) IsLoading() bool {
	return h.InProgress()
}

// EncryptedCallHook encrypts a value and passes its first handle and the
// input proof as the leading arguments of a contract method.
type EncryptedCallHook struct {
	Operation[*types.Receipt]
	provider *Provider
	encrypt  *EncryptHook
}

func NewEncryptedCallHook(p *Provider) *EncryptedCallHook {
	return &EncryptedCallHook{
		provider: p,
		encrypt:  NewEncryptHook(p),
	}
}

// UseEncryptedCall creates an EncryptedCallHook bound to the provider
// carried by ctx.
func UseEncryptedCall(ctx context.Context) (*EncryptedCallHook, error) {
	p, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewEncryptedCallHook(p), nil
}

// EncryptAndCall calls method(handle, proof, args...). Either stage
// failing fails the whole call.
func (h *EncryptedCallHook) EncryptAndCall(
	ctx context.Context,
	value *big.Int,
	width fhevm.Width,
	c *contract.Contract,
	method string,
	args ...any,
) *types.Receipt {
	if clientOf(h.provider) == nil {
		h.fail(fhevm.ErrClientNotInitialized)
		return nil
	}
	receipt, _ := h.run(func() (*types.Receipt, error) {
		if c == nil {
			return nil, ErrNoContract
		}
		encrypted, err := h.encrypt.encrypt(ctx, value, width)
		if err != nil {
			return nil, err
		}
		if len(encrypted.Handles) == 0 {
			return nil, fhevm.ErrNoHandles
		}
		callArgs := append([]any{encrypted.Handles[0], []byte(encrypted.Proof)}, args...)
		return c.Transact(ctx, method, callArgs...)
	})
	return receipt
}

// EncryptState exposes the state of the encryption stage.
func (h *EncryptedCallHook) EncryptState() State[*fhevm.EncryptResult] {
	return h.encrypt.State()
}

func (h *EncryptedCallHook) IsLoading() bool {
	return h.InProgress()
}
