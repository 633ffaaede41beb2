// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/sony/gobreaker"

	"github.com/luxfi/fhevm/cache"
	"github.com/luxfi/fhevm/utils"
)

// State is the lifecycle state of a Client.
type State uint8

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

type publicValueKey struct {
	contract common.Address
	handle   common.Hash
}

// Client encrypts inputs with a cached encryption instance and decrypts
// handles through a gateway.
//
// A Client starts uninitialized. Initialize builds (or fetches from the
// cache) the instance for the configured chain; a failed Initialize leaves
// the client uninitialized so it can be retried. Once ready the client stays
// ready for its lifetime.
type Client struct {
	cfg     Config
	log     log.Logger
	gateway gatewayClient

	// initLock serializes Initialize so construction happens at most once.
	initLock sync.Mutex

	lock     sync.RWMutex
	state    State
	instance Instance

	publicValues *cache.LRUCache[publicValueKey, *big.Int]
	publicKeys   *cache.TTLCache[common.Address, []byte]
}

// NewClient creates an uninitialized client. cfg.Cache must be set for
// Initialize to succeed.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		cfg:     cfg,
		log:     logger,
		gateway: newGatewayClient(cfg.GatewayURL, httpClient),
	}
	if cfg.GatewayBreakerThreshold > 0 {
		c.gateway = c.gateway.withBreaker(cfg.GatewayBreakerThreshold, cfg.GatewayBreakerTimeout)
	}
	if cfg.PublicDecryptCacheSize > 0 {
		c.publicValues = cache.NewLRUCache[publicValueKey, *big.Int](cfg.PublicDecryptCacheSize)
	}
	if cfg.PublicKeyTTL > 0 {
		c.publicKeys = cache.NewTTLCache[common.Address, []byte](cfg.PublicKeyTTL)
	}
	return c
}

// Initialize builds the encryption instance. It is a no-op once the client
// is ready.
func (c *Client) Initialize(ctx context.Context) error {
	c.initLock.Lock()
	defer c.initLock.Unlock()

	if c.IsInitialized() {
		return nil
	}
	c.setState(StateInitializing)

	var (
		instance Instance
		err      = ErrNoInstanceFactory
	)
	if c.cfg.Cache != nil {
		instance, err = c.cfg.Cache.GetOrCreate(ctx, c.cfg.instanceConfig())
	}
	if err != nil {
		c.setState(StateUninitialized)
		c.log.Warn("failed to initialize FHEVM client",
			log.Stringer("chainID", c.ChainID()),
			log.Err(err),
		)
		return &InitializationError{Err: err}
	}

	c.lock.Lock()
	c.instance = instance
	c.state = StateReady
	c.lock.Unlock()

	c.log.Info("FHEVM client initialized", log.Stringer("chainID", c.ChainID()))
	return nil
}

// IsInitialized reports whether Initialize has completed successfully.
func (c *Client) IsInitialized() bool {
	return c.State() == StateReady
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

// Instance returns the encryption instance, or ErrNotInitialized.
func (c *Client) Instance() (Instance, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.state != StateReady {
		return nil, ErrNotInitialized
	}
	return c.instance, nil
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).SetUint64(c.cfg.ChainID)
}

// GatewayURL returns the configured gateway URL.
func (c *Client) GatewayURL() string {
	return c.cfg.GatewayURL
}

// Encrypt encrypts value as an unsigned integer of the given width.
func (c *Client) Encrypt(ctx context.Context, value *big.Int, width Width) (*EncryptResult, error) {
	instance, err := c.Instance()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &EncryptionError{Err: err}
	}
	result, err := encryptValue(instance, value, width)
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}
	return result, nil
}

// Decrypt decrypts params.Handle for the signer's account. The signer is
// asked to sign its public-key message and then the EIP-712 Reencrypt
// authorization before the gateway is contacted.
func (c *Client) Decrypt(ctx context.Context, params DecryptParams) (*big.Int, error) {
	if !c.IsInitialized() {
		return nil, ErrNotInitialized
	}

	req, err := authorizeDecrypt(ctx, params.Signer, params.ContractAddress, params.Handle, c.publicKey)
	if err != nil {
		return nil, wrapDecryptionError(err, false)
	}

	var value *big.Int
	err = c.withRetry(ctx, func() (err error) {
		value, err = c.gateway.decrypt(ctx, req)
		return err
	})
	if err != nil {
		c.log.Warn("decryption request failed",
			log.Stringer("contract", params.ContractAddress),
			log.Stringer("handle", params.Handle),
			log.Err(err),
		)
		return nil, wrapDecryptionError(err, false)
	}
	return value, nil
}

// PublicDecrypt decrypts a handle marked publicly decryptable on-chain.
func (c *Client) PublicDecrypt(ctx context.Context, params PublicDecryptParams) (*big.Int, error) {
	if !c.IsInitialized() {
		return nil, ErrNotInitialized
	}

	fetch := func(publicValueKey) (*big.Int, error) {
		var value *big.Int
		err := c.withRetry(ctx, func() (err error) {
			value, err = c.gateway.publicDecrypt(ctx, PublicDecryptRequest{
				ContractAddress: params.ContractAddress,
				Handle:          params.Handle,
			})
			return err
		})
		return value, err
	}

	var (
		value *big.Int
		err   error
	)
	if c.publicValues != nil {
		value, err = c.publicValues.Get(publicValueKey{params.ContractAddress, params.Handle}, fetch, false)
	} else {
		value, err = fetch(publicValueKey{})
	}
	if err != nil {
		c.log.Warn("public decryption request failed",
			log.Stringer("contract", params.ContractAddress),
			log.Stringer("handle", params.Handle),
			log.Err(err),
		)
		return nil, wrapDecryptionError(err, true)
	}
	return new(big.Int).Set(value), nil
}

func (c *Client) setState(s State) {
	c.lock.Lock()
	c.state = s
	c.lock.Unlock()
}

func (c *Client) publicKey(ctx context.Context, signer Signer) ([]byte, error) {
	if c.publicKeys == nil {
		return GeneratePublicKey(ctx, signer)
	}
	owner, err := signer.Address(ctx)
	if err != nil {
		return nil, err
	}
	return c.publicKeys.Get(owner, func(common.Address) ([]byte, error) {
		return GeneratePublicKey(ctx, signer)
	}, false)
}

// withRetry runs op once, or with exponential backoff when a retry timeout
// is configured. Client errors (4xx) and an open circuit breaker are not
// retried.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	if c.cfg.GatewayRetryTimeout <= 0 {
		return op()
	}
	return utils.WithRetriesTimeout(ctx, c.log, func() error {
		err := op()
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError || errors.Is(err, gobreaker.ErrOpenState) {
			return backoff.Permanent(err)
		}
		return err
	}, c.cfg.GatewayRetryTimeout)
}
