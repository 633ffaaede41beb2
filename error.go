// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized       = errors.New("FHEVM client not initialized")
	ErrClientNotInitialized = errors.New("FHEVM client not initialized")
	ErrContextUnavailable   = errors.New("must be used within a FhevmProvider")
	ErrValueOutOfRange      = errors.New("value out of range")
	ErrUnsupportedWidth     = errors.New("unsupported type")
	ErrNoInstanceFactory    = errors.New("no instance factory configured")
	ErrMissingGatewayURL    = errors.New("gateway URL not configured")
	ErrNoHandles            = errors.New("encrypted input produced no handles")
	ErrMissingSigner        = errors.New("signer required for user decryption")
	ErrMissingPublicKey     = errors.New("gateway returned no public key")
)

// InitializationError reports a failure to construct the encryption instance.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("Failed to initialize FHEVM: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// EncryptionError reports an input-builder or finalize failure.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("Encryption failed: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// DecryptionError reports a gateway failure: a non-2xx response, a transport
// error, a signing failure, or an unparseable body.
type DecryptionError struct {
	// Public is set for the unsigned public-decrypt path.
	Public bool
	// StatusCode is the gateway's HTTP status, zero when no response arrived.
	StatusCode int
	Err        error
}

func (e *DecryptionError) Error() string {
	if e.Public {
		return fmt.Sprintf("Public decryption failed: %v", e.Err)
	}
	return fmt.Sprintf("Decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// statusError carries the reason phrase of a non-2xx gateway response.
type statusError struct {
	code int
	text string
}

func (e *statusError) Error() string { return e.text }
