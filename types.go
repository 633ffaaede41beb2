// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"
)

const (
	// DefaultChainID is the Sepolia testnet chain id.
	DefaultChainID uint64 = 11155111

	// DefaultGatewayURL is the public decryption gateway.
	DefaultGatewayURL = "https://gateway.zama.ai"
)

// Width is the bit width of an encrypted unsigned integer.
type Width uint16

const (
	Uint8   Width = 8
	Uint16  Width = 16
	Uint32  Width = 32
	Uint64  Width = 64
	Uint128 Width = 128
	Uint256 Width = 256
)

// Widths lists every supported width in ascending order.
var Widths = []Width{Uint8, Uint16, Uint32, Uint64, Uint128, Uint256}

// Valid reports whether w is one of the supported widths.
func (w Width) Valid() bool {
	switch w {
	case Uint8, Uint16, Uint32, Uint64, Uint128, Uint256:
		return true
	default:
		return false
	}
}

// Max returns the largest value representable at this width.
func (w Width) Max() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(w))
	return max.Sub(max, big.NewInt(1))
}

// Fits reports whether value is a non-negative integer representable at w.
func (w Width) Fits(value *big.Int) bool {
	if value == nil || value.Sign() < 0 {
		return false
	}
	return value.BitLen() <= int(w)
}

func (w Width) String() string {
	return fmt.Sprintf("uint%d", uint16(w))
}

// ParseWidth parses "uint8".."uint256", also accepting the encrypted
// type names "euint8".."euint256".
func ParseWidth(s string) (Width, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "e")
	for _, w := range Widths {
		if w.String() == name {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedWidth, s)
}

// InstanceConfig identifies which encryption instance to build. Once an
// instance is cached under ChainID the config is not consulted again.
type InstanceConfig struct {
	ChainID    uint64
	NetworkURL string
	GatewayURL string
	ACLAddress string
}

// EncryptResult is the output of a single encrypt call.
type EncryptResult struct {
	Data    hexutil.Bytes `json:"data"`
	Handles []common.Hash `json:"handles"`
	Proof   hexutil.Bytes `json:"proof"`
}

// DecryptParams describes a user-authorized decryption.
type DecryptParams struct {
	ContractAddress common.Address
	Handle          common.Hash
	Signer          Signer
}

// PublicDecryptParams describes a decryption of a publicly decryptable value.
type PublicDecryptParams struct {
	ContractAddress common.Address
	Handle          common.Hash
}

// Config configures a Client.
type Config struct {
	ChainID    uint64
	NetworkURL string
	GatewayURL string
	ACLAddress string

	// Cache is the instance registry the client builds through. Required.
	Cache *InstanceCache

	// HTTPClient is used for gateway requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger log.Logger

	// PublicDecryptCacheSize enables an LRU of public decryption results
	// keyed by contract and handle when positive.
	PublicDecryptCacheSize int

	// PublicKeyTTL caches the per-user public key derived from a signer so
	// repeated decryptions do not prompt for a new signature.
	PublicKeyTTL time.Duration

	// GatewayRetryTimeout retries failed gateway requests with exponential
	// backoff until the timeout elapses. Zero disables retries.
	GatewayRetryTimeout time.Duration

	// GatewayBreakerThreshold opens a circuit breaker after this many
	// consecutive gateway failures. While open, decryptions fail fast until
	// GatewayBreakerTimeout (default 60s) has passed. Zero disables it.
	GatewayBreakerThreshold uint32
	GatewayBreakerTimeout   time.Duration
}

func (c Config) instanceConfig() InstanceConfig {
	return InstanceConfig{
		ChainID:    c.ChainID,
		NetworkURL: c.NetworkURL,
		GatewayURL: c.GatewayURL,
		ACLAddress: c.ACLAddress,
	}
}
