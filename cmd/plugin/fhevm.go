// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

// Package plugin provides the fhevm commands, usable standalone or mounted
// in the Lux CLI.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/config"
	"github.com/luxfi/fhevm/crypto/fhe"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/server"
)

var (
	errInvalidContract = errors.New("invalid contract address")
	errInvalidHandle   = errors.New("handle must be 32 bytes of hex")
)

// NewFhevmCmd creates the fhevm command. version is reported by the
// version subcommand.
func NewFhevmCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fhevm",
		Short: "Encrypt inputs and decrypt handles for FHE-enabled contracts",
		Long: `fhevm encrypts plaintexts into handles and input proofs for FHE-enabled
smart contracts, and decrypts handles through a decryption gateway.

Every flag may also be set through a FHEVM_* environment variable or a JSON
config file passed with --config-file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	config.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newEncryptCmd())
	cmd.AddCommand(newDecryptCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}

func newEncryptCmd() *cobra.Command {
	var (
		value     string
		valueType string
	)

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a value under the gateway's public key",
		Long: `Encrypt a plaintext under the public key served by the configured
gateway and print the encrypted input as JSON.

Example:
  fhevm encrypt --value 42 --type euint8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			width, err := fhevm.ParseWidth(valueType)
			if err != nil {
				return err
			}
			plaintext, err := fhevm.HexToBigInt(value)
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.Logger()
			clientCfg := cfg.ClientConfig()
			clientCfg.Logger = logger
			clientCfg.Cache = fhevm.NewInstanceCache(fhe.NewFactory(logger, nil))

			client := fhevm.NewClient(clientCfg)
			if err := client.Initialize(cmd.Context()); err != nil {
				return err
			}
			result, err := client.Encrypt(cmd.Context(), plaintext, width)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "Plaintext, decimal or 0x-prefixed hex")
	cmd.Flags().StringVar(&valueType, "type", "", "Encrypted type, e.g. uint8 or euint64")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var (
		contract string
		handle   string
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a handle through the gateway",
		Long: `Decrypt a handle through the configured gateway. With --private-key the
request is signed and sent to the user decryption endpoint, otherwise the
handle must be publicly decryptable.

Example:
  fhevm decrypt --contract 0x5FbDB2315678afecb367f032d93F642f64180aa3 --handle 0x...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !fhevm.IsValidAddress(contract) {
				return fmt.Errorf("%w: %q", errInvalidContract, contract)
			}
			handleBytes, err := hexutil.Decode(handle)
			if err != nil || len(handleBytes) != common.HashLength {
				return fmt.Errorf("%w: %q", errInvalidHandle, handle)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var signer fhevm.Signer
			local, err := cfg.Signer()
			if err != nil {
				return err
			}
			if local != nil {
				signer = local
			}

			value, err := fhevm.DecryptData(
				cmd.Context(),
				common.HexToAddress(contract),
				common.BytesToHash(handleBytes),
				cfg.GatewayURL,
				signer,
			)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&contract, "contract", "", "Contract the handle belongs to")
	cmd.Flags().StringVar(&handle, "handle", "", "Handle to decrypt (0x-prefixed hex)")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run a development decryption gateway",
		Long: `Run a decryption gateway backed by a freshly generated key pair. The
public key is served at GET /keys for clients to encrypt under. Ciphertexts
are registered through POST /ciphertexts and decrypted through /decrypt and
/public-decrypt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.Logger()
			keys, err := fhe.GenerateKeyring(instanceConfig(cfg))
			if err != nil {
				return err
			}
			gw := gateway.NewServer(logger, keys, prometheus.NewRegistry())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runHTTPServer(ctx, logger, "gateway", cfg.GatewayPort, gw)
		},
	}
}

func newServeCmd() *cobra.Command {
	var withGateway bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP encryption service",
		Long: `Run the encryption service: POST /api/encrypt and GET /health.

Without --with-gateway the service encrypts under the public key of the
configured gateway. With --with-gateway a development gateway is started on
the gateway port and the service encrypts under its key pair, so values can
be registered and decrypted locally.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.Logger()
			clientCfg := cfg.ClientConfig()
			clientCfg.Logger = logger

			var gw *gateway.Server
			if withGateway {
				keys, err := fhe.GenerateKeyring(instanceConfig(cfg))
				if err != nil {
					return err
				}
				gw = gateway.NewServer(logger, keys, prometheus.NewRegistry())
				clientCfg.Cache = fhevm.NewInstanceCache(fhe.NewKeyringFactory(logger, keys))
			} else {
				clientCfg.Cache = fhevm.NewInstanceCache(fhe.NewFactory(logger, nil))
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := fhevm.NewClient(clientCfg)
			if err := client.Initialize(ctx); err != nil {
				return err
			}
			logger.Info("FHEVM client initialized")

			errGroup, ctx := errgroup.WithContext(ctx)
			errGroup.Go(func() error {
				return runHTTPServer(ctx, logger, "encryption service", cfg.APIPort, server.NewServer(logger, client, prometheus.NewRegistry()))
			})
			if gw != nil {
				errGroup.Go(func() error {
					return runHTTPServer(ctx, logger, "gateway", cfg.GatewayPort, gw)
				})
			}
			return errGroup.Wait()
		},
	}
	cmd.Flags().BoolVar(&withGateway, "with-gateway", false, "Also run a development gateway and encrypt under its key pair")
	return cmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("couldn't configure flags: %w", err)
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("couldn't build config: %w", err)
	}
	return cfg, nil
}

func instanceConfig(cfg config.Config) fhevm.InstanceConfig {
	return fhevm.InstanceConfig{
		ChainID:    cfg.ChainID,
		NetworkURL: cfg.NetworkURL,
		GatewayURL: cfg.GatewayURL,
		ACLAddress: cfg.ACLAddress,
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runHTTPServer serves handler on port until ctx is done.
func runHTTPServer(ctx context.Context, logger log.Logger, name string, port uint16, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info(fmt.Sprintf("Starting %s on %s", name, httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}
