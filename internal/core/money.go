// Package core provides money parsing and handling utilities.
//
// All ledger arithmetic happens on int64 minor units. Decimal strings are
// only used at the edges (requests, spreadsheet rows).
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// ParseAmount converts a decimal string to cents, rounding half away from
// zero on the third decimal place. Both "12.34" and "12,34" are accepted.
// Negative values are allowed; callers that need a non-negative amount
// validate the result.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("12,345") -> 1235
//	ParseAmount("-5")     -> -500
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return Money{}, invalid("amount", "must not be empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, invalid("amount", "not a number: %q", s)
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || cents.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return Money{}, invalid("amount", "out of range")
	}
	return Money{Cents: cents.IntPart()}, nil
}

// String renders the amount with two decimals, e.g. "-12.05".
func (m Money) String() string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}

// Add returns m+o or ErrArithmeticInvariant on int64 overflow.
func (m Money) Add(o Money) (Money, error) {
	if (o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents) ||
		(o.Cents < 0 && m.Cents < math.MinInt64-o.Cents) {
		return Money{}, fmt.Errorf("%w: %d + %d overflows", ErrArithmeticInvariant, m.Cents, o.Cents)
	}
	return Money{Cents: m.Cents + o.Cents}, nil
}

// Sub returns m-o or ErrArithmeticInvariant on int64 overflow.
func (m Money) Sub(o Money) (Money, error) {
	if (o.Cents < 0 && m.Cents > math.MaxInt64+o.Cents) ||
		(o.Cents > 0 && m.Cents < math.MinInt64+o.Cents) {
		return Money{}, fmt.Errorf("%w: %d - %d overflows", ErrArithmeticInvariant, m.Cents, o.Cents)
	}
	return Money{Cents: m.Cents - o.Cents}, nil
}

// Sum adds ledger amounts. Ledger rows are non-negative by construction, so
// a negative row means the store was corrupted.
func Sum(amounts []Money) (Money, error) {
	var total Money
	for _, a := range amounts {
		if a.Cents < 0 {
			return Money{}, fmt.Errorf("%w: negative ledger amount %d", ErrArithmeticInvariant, a.Cents)
		}
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
