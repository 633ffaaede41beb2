// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math"
)

// BigIntToHex formats value as 0x-prefixed lowercase hex.
func BigIntToHex(value *big.Int) string {
	return "0x" + value.Text(16)
}

// HexToBigInt parses a 0x-prefixed hex string or a decimal string.
func HexToBigInt(s string) (*big.Int, error) {
	return parseBigInt(s)
}

// IsValidAddress reports whether address is a 0x-prefixed 20-byte hex string.
func IsValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// FormatHandle shortens a handle for display, keeping the first six and
// last four characters.
func FormatHandle(handle string) string {
	if len(handle) <= 10 {
		return handle
	}
	return handle[:6] + "..." + handle[len(handle)-4:]
}

// sanitizeHex strips an optional 0x prefix.
func sanitizeHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// parseBigInt accepts decimal or 0x-prefixed hex up to 256 bits. Empty input
// is an error rather than zero.
func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
