// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variables are the upper-cased keys with this prefix, e.g.
	// FHEVM_GATEWAY_URL.
	EnvPrefix = "FHEVM"

	// Top-level configuration keys
	LogLevelKey                = "log-level"
	ChainIDKey                 = "chain-id"
	NetworkURLKey              = "network-url"
	GatewayURLKey              = "gateway-url"
	ACLAddressKey              = "acl-address"
	APIPortKey                 = "api-port"
	GatewayPortKey             = "gateway-port"
	PublicDecryptCacheSizeKey  = "public-decrypt-cache-size"
	PublicKeyTTLKey            = "public-key-ttl"
	GatewayRetryTimeoutKey     = "gateway-retry-timeout"
	GatewayBreakerThresholdKey = "gateway-breaker-threshold"
	GatewayBreakerTimeoutKey   = "gateway-breaker-timeout"
	PrivateKeyKey              = "private-key"
)
