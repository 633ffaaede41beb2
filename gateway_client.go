// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/sony/gobreaker"
)

// Gateway endpoints, relative to the gateway URL.
const (
	DecryptPath       = "/decrypt"
	PublicDecryptPath = "/public-decrypt"
	KeysPath          = "/keys"
)

// KeysResponse is the body of GET {gateway}/keys.
type KeysResponse struct {
	Success bool     `json:"success"`
	Data    KeysData `json:"data"`
}

// KeysData is the FHE public key the gateway decrypts under, with the
// chain and ACL contract handles must be bound to.
type KeysData struct {
	PublicKey  hexutil.Bytes  `json:"publicKey"`
	ChainID    uint64         `json:"chainId"`
	ACLAddress common.Address `json:"aclAddress"`
}

// DecryptRequest is the body of POST {gateway}/decrypt.
type DecryptRequest struct {
	ContractAddress common.Address `json:"contractAddress"`
	Handle          common.Hash    `json:"handle"`
	Signature       hexutil.Bytes  `json:"signature"`
	PublicKey       hexutil.Bytes  `json:"publicKey"`
}

// PublicDecryptRequest is the body of POST {gateway}/public-decrypt.
type PublicDecryptRequest struct {
	ContractAddress common.Address `json:"contractAddress"`
	Handle          common.Hash    `json:"handle"`
}

// DecryptResponse is the success body of both gateway endpoints. Value is a
// string-encoded integer.
type DecryptResponse struct {
	Value string `json:"value"`
}

type gatewayClient struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newGatewayClient(url string, client *http.Client) gatewayClient {
	if client == nil {
		client = http.DefaultClient
	}
	return gatewayClient{
		url:    strings.TrimRight(url, "/"),
		client: client,
	}
}

// withBreaker trips after threshold consecutive failures and rejects
// requests with gobreaker.ErrOpenState until timeout has passed. Responses
// below 500 count as successes.
func (g gatewayClient) withBreaker(threshold uint32, timeout time.Duration) gatewayClient {
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fhevm-gateway",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *statusError
			return errors.As(err, &se) && se.code < http.StatusInternalServerError
		},
	})
	return g
}

func (g gatewayClient) decrypt(ctx context.Context, req DecryptRequest) (*big.Int, error) {
	return g.post(ctx, DecryptPath, req)
}

func (g gatewayClient) publicDecrypt(ctx context.Context, req PublicDecryptRequest) (*big.Int, error) {
	return g.post(ctx, PublicDecryptPath, req)
}

func (g gatewayClient) post(ctx context.Context, path string, body any) (*big.Int, error) {
	if g.url == "" {
		return nil, ErrMissingGatewayURL
	}
	if g.breaker == nil {
		return g.do(ctx, path, body)
	}
	value, err := g.breaker.Execute(func() (interface{}, error) {
		return g.do(ctx, path, body)
	})
	if err != nil {
		return nil, err
	}
	return value.(*big.Int), nil
}

func (g gatewayClient) do(ctx context.Context, path string, body any) (*big.Int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode, text: reasonPhrase(resp)}
	}

	var result struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return parseValue(result.Value)
}

// FetchGatewayKeys downloads the gateway's public key material.
func FetchGatewayKeys(ctx context.Context, client *http.Client, gatewayURL string) (*KeysData, error) {
	gatewayURL = strings.TrimRight(gatewayURL, "/")
	if gatewayURL == "" {
		return nil, ErrMissingGatewayURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL+KeysPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode, text: reasonPhrase(resp)}
	}
	var keys KeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("failed to decode keys: %w", err)
	}
	if !keys.Success || len(keys.Data.PublicKey) == 0 {
		return nil, ErrMissingPublicKey
	}
	return &keys.Data, nil
}

// parseValue accepts the value as a JSON string (decimal or 0x hex) or a
// bare JSON number.
func parseValue(raw json.RawMessage) (*big.Int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("response missing value")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
	}
	return parseBigInt(s)
}

// reasonPhrase returns the status text of resp, e.g. "Internal Server Error".
func reasonPhrase(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func wrapDecryptionError(err error, public bool) error {
	if err == nil {
		return nil
	}
	decErr := &DecryptionError{Public: public, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		decErr.StatusCode = se.code
	}
	return decErr
}

// authorizeDecrypt produces the signed /decrypt body for handle. publicKey
// derives the user's re-encryption key.
func authorizeDecrypt(
	ctx context.Context,
	signer Signer,
	contract common.Address,
	handle common.Hash,
	publicKey func(context.Context, Signer) ([]byte, error),
) (DecryptRequest, error) {
	if signer == nil {
		return DecryptRequest{}, ErrMissingSigner
	}
	pk, err := publicKey(ctx, signer)
	if err != nil {
		return DecryptRequest{}, fmt.Errorf("failed to generate public key: %w", err)
	}
	sig, err := CreateEIP712Signature(ctx, signer, contract, handle, pk)
	if err != nil {
		return DecryptRequest{}, fmt.Errorf("failed to sign reencryption request: %w", err)
	}
	return DecryptRequest{
		ContractAddress: contract,
		Handle:          handle,
		Signature:       sig,
		PublicKey:       pk,
	}, nil
}
