// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildViper builds the viper instance. All config keys may be provided via
// flag, environment variable or an optional JSON config file.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}

	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(ChainIDKey, defaultChainID)
	v.SetDefault(NetworkURLKey, defaultNetworkURL)
	v.SetDefault(GatewayURLKey, defaultGatewayURL)
	v.SetDefault(ACLAddressKey, "")
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(GatewayPortKey, defaultGatewayPort)
	v.SetDefault(PublicDecryptCacheSizeKey, defaultPublicDecryptCacheSize)
	v.SetDefault(PublicKeyTTLKey, defaultPublicKeyTTL)
	v.SetDefault(GatewayRetryTimeoutKey, 0)
	v.SetDefault(GatewayBreakerThresholdKey, 0)
	v.SetDefault(GatewayBreakerTimeoutKey, defaultGatewayBreakerTimeout)
	v.SetDefault(PrivateKeyKey, "")
}

// BuildConfig constructs the config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
//
// Returns the Config
func BuildConfig(v *viper.Viper) (Config, error) {
	// Set default values
	SetDefaultConfigValues(v)

	// Build the config from Viper
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
