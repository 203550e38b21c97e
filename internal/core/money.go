// Package core holds the domain model: users, categories, transactions and
// the money arithmetic shared by every other package.
//
// Amounts are stored as int64 cents; decimal parsing happens once at the edge.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var centsFactor = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to cents.
//
// It accepts both dot (12.34) and comma (12,34) separators, rounds half-up on
// the third decimal place, and rejects zero or negative values.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}

	cents := d.Round(2).Mul(centsFactor)
	if !cents.IsInteger() || !cents.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatCents renders cents as a plain two-decimal string, e.g. 1234 -> "12.34".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
