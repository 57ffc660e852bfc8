// Package money provides shared fixed-point parsing and formatting for
// USDC amounts used throughout XDR.
//
// Amounts carry two decimal digits of precision, per the account and wire
// contracts. All amounts are stored as big.Int counts of the smallest unit
// (1 USDC = 100 units) to avoid floating-point drift across repeated
// fund/debit operations.
package money

import (
	"math/big"
	"strconv"
	"strings"
)

const Decimals = 2

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (150). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	if combined == "" {
		return nil, false
	}
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// ParseFloat converts a JSON number (as decoded into float64, e.g. from a
// control-plane request body) into smallest-unit cents. Rounds to the
// nearest cent.
func ParseFloat(f float64) (*big.Int, bool) {
	if f < 0 {
		return nil, false
	}
	cents := int64(f*100 + 0.5)
	return big.NewInt(cents), true
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string with exactly 2 decimal places (e.g. "1.50").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// ToFloat converts smallest-unit cents to a float64 for JSON responses that
// the wire contract specifies as a bare number rather than a string
// (e.g. the 402 challenge body's "amount" field).
func ToFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := strconv.ParseFloat(Format(amount), 64)
	return f
}
