// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// BuildFlagSet returns the flags shared by every command. Flags left unset
// fall through to the environment, the config file and then the defaults.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fhevm", pflag.ContinueOnError)
	AddFlags(fs)
	return fs
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Specifies the JSON config file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level: verbo, debug, trace, info, warn, error, fatal or off")
	fs.Uint64(ChainIDKey, defaultChainID, "Chain id of the target network")
	fs.String(NetworkURLKey, defaultNetworkURL, "JSON-RPC URL of the target network")
	fs.String(GatewayURLKey, defaultGatewayURL, "Decryption gateway URL")
	fs.String(ACLAddressKey, "", "ACL contract address")
	fs.Uint16(APIPortKey, defaultAPIPort, "Port of the encryption service")
	fs.Uint16(GatewayPortKey, defaultGatewayPort, "Port of the development gateway")
	fs.Int(PublicDecryptCacheSizeKey, defaultPublicDecryptCacheSize, "Public decryption results to cache, 0 disables")
	fs.Duration(PublicKeyTTLKey, defaultPublicKeyTTL, "How long a derived user public key is reused, 0 disables")
	fs.Duration(GatewayRetryTimeoutKey, 0, "Retry failed gateway requests until this timeout, 0 disables")
	fs.Uint32(GatewayBreakerThresholdKey, 0, "Consecutive gateway failures that open the circuit breaker, 0 disables")
	fs.Duration(GatewayBreakerTimeoutKey, defaultGatewayBreakerTimeout, "How long an open circuit breaker rejects gateway requests")
	fs.String(PrivateKeyKey, "", "Hex private key used to sign decryption requests")
}

// DisplayUsageText prints the configuration help text.
func DisplayUsageText() {
	fmt.Fprintf(os.Stderr, `Usage: fhevm <command> [flags]

Every flag may also be set in a JSON file passed with --%s, or through an
environment variable named %s_<FLAG>, upper-cased with hyphens replaced by
underscores (e.g. %s_GATEWAY_URL).

Flags:
%s`, ConfigFileKey, EnvPrefix, EnvPrefix, BuildFlagSet().FlagUsages())
}
