// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/log/level"

	"github.com/luxfi/fhevm"
)

const (
	defaultLogLevel               = "info"
	defaultChainID                = fhevm.DefaultChainID
	defaultNetworkURL             = "http://localhost:8545"
	defaultGatewayURL             = fhevm.DefaultGatewayURL
	defaultAPIPort                = uint16(3000)
	defaultGatewayPort            = uint16(7077)
	defaultPublicDecryptCacheSize = 1024
	defaultPublicKeyTTL           = time.Hour
	defaultGatewayBreakerTimeout  = time.Minute
)

var (
	errInvalidChainID    = errors.New("chain id must be non-zero")
	errInvalidLogLevel   = errors.New("invalid log level")
	errInvalidACLAddress = errors.New("invalid ACL address")
	errNegativeValue     = errors.New("value must not be negative")
)

// Config is the configuration shared by the CLI commands and servers.
type Config struct {
	LogLevel                string        `mapstructure:"log-level" json:"log-level"`
	ChainID                 uint64        `mapstructure:"chain-id" json:"chain-id"`
	NetworkURL              string        `mapstructure:"network-url" json:"network-url"`
	GatewayURL              string        `mapstructure:"gateway-url" json:"gateway-url"`
	ACLAddress              string        `mapstructure:"acl-address" json:"acl-address"`
	APIPort                 uint16        `mapstructure:"api-port" json:"api-port"`
	GatewayPort             uint16        `mapstructure:"gateway-port" json:"gateway-port"`
	PublicDecryptCacheSize  int           `mapstructure:"public-decrypt-cache-size" json:"public-decrypt-cache-size"`
	PublicKeyTTL            time.Duration `mapstructure:"public-key-ttl" json:"public-key-ttl"`
	GatewayRetryTimeout     time.Duration `mapstructure:"gateway-retry-timeout" json:"gateway-retry-timeout"`
	GatewayBreakerThreshold uint32        `mapstructure:"gateway-breaker-threshold" json:"gateway-breaker-threshold"`
	GatewayBreakerTimeout   time.Duration `mapstructure:"gateway-breaker-timeout" json:"gateway-breaker-timeout"`
	PrivateKey              string        `mapstructure:"private-key" json:"private-key"`
}

func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return errInvalidChainID
	}
	if _, err := log.ToLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, c.LogLevel)
	}
	if err := validateURL(NetworkURLKey, c.NetworkURL); err != nil {
		return err
	}
	if err := validateURL(GatewayURLKey, c.GatewayURL); err != nil {
		return err
	}
	if c.ACLAddress != "" && !fhevm.IsValidAddress(c.ACLAddress) {
		return fmt.Errorf("%w: %q", errInvalidACLAddress, c.ACLAddress)
	}
	if c.PublicDecryptCacheSize < 0 {
		return fmt.Errorf("%s: %w", PublicDecryptCacheSizeKey, errNegativeValue)
	}
	if c.PublicKeyTTL < 0 {
		return fmt.Errorf("%s: %w", PublicKeyTTLKey, errNegativeValue)
	}
	if c.GatewayRetryTimeout < 0 {
		return fmt.Errorf("%s: %w", GatewayRetryTimeoutKey, errNegativeValue)
	}
	if c.GatewayBreakerTimeout < 0 {
		return fmt.Errorf("%s: %w", GatewayBreakerTimeoutKey, errNegativeValue)
	}
	return nil
}

// ClientConfig returns the fhevm client configuration. Cache and Logger are
// left for the caller to set.
func (c *Config) ClientConfig() fhevm.Config {
	return fhevm.Config{
		ChainID:                 c.ChainID,
		NetworkURL:              c.NetworkURL,
		GatewayURL:              c.GatewayURL,
		ACLAddress:              c.ACLAddress,
		PublicDecryptCacheSize:  c.PublicDecryptCacheSize,
		PublicKeyTTL:            c.PublicKeyTTL,
		GatewayRetryTimeout:     c.GatewayRetryTimeout,
		GatewayBreakerThreshold: c.GatewayBreakerThreshold,
		GatewayBreakerTimeout:   c.GatewayBreakerTimeout,
	}
}

// Signer returns a local signer for the configured private key, or nil if
// none is set.
func (c *Config) Signer() (*fhevm.LocalSigner, error) {
	if c.PrivateKey == "" {
		return nil, nil
	}
	return fhevm.NewLocalSignerFromHex(c.PrivateKey, new(big.Int).SetUint64(c.ChainID))
}

// Logger returns a plain-text stderr logger at the configured level. An
// unparsable level falls back to info; Validate reports it first.
func (c *Config) Logger() log.Logger {
	lvl, err := log.ToLevel(c.LogLevel)
	if err != nil {
		lvl = level.Info
	}
	return log.NewLogger(
		"fhevm",
		*log.NewWrappedCore(lvl, os.Stderr, log.Plain.ConsoleEncoder()),
	)
}

func validateURL(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid %s %q: expected an http(s) URL", key, raw)
	}
	return nil
}
