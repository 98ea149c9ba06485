// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements signed 18-decimal fixed point arithmetic on
// big integers. Every price, size, margin and ratio in the perps VM is a
// *big.Int scaled by Unit.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a fixed point value.
const Decimals = 18

var (
	ErrInvalidDecimal = errors.New("invalid decimal")

	// Unit is 1.0 (1e18).
	Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
)

// New returns x scaled to fixed point.
func New(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), Unit)
}

// NewRatio returns num/den in fixed point, truncated toward zero.
func NewRatio(num, den int64) *big.Int {
	return MulDiv(big.NewInt(num), Unit, big.NewInt(den))
}

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// Copy returns a copy of x. A nil x yields zero.
func Copy(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// IsZero reports whether x is nil or zero.
func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}

// Mul returns a*b/Unit.
func Mul(a, b *big.Int) *big.Int {
	return MulDiv(a, b, Unit)
}

// Div returns a*Unit/b. It panics if b is zero.
func Div(a, b *big.Int) *big.Int {
	return MulDiv(a, Unit, b)
}

// MulDiv returns a*b/c with a single truncating division. The intermediate
// product is exact.
func MulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, c)
}

// Abs returns |x|.
func Abs(x *big.Int) *big.Int {
	return new(big.Int).Abs(x)
}

// Neg returns -x.
func Neg(x *big.Int) *big.Int {
	return new(big.Int).Neg(x)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi *big.Int) *big.Int {
	switch {
	case x.Cmp(lo) < 0:
		return new(big.Int).Set(lo)
	case x.Cmp(hi) > 0:
		return new(big.Int).Set(hi)
	default:
		return new(big.Int).Set(x)
	}
}

// SameSide reports whether a and b are both non-zero with equal signs.
func SameSide(a, b *big.Int) bool {
	return a.Sign() != 0 && a.Sign() == b.Sign()
}

// FromDecimal converts d to fixed point, truncating digits past Decimals.
func FromDecimal(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).Truncate(0).BigInt()
}

// ToDecimal converts a fixed point value into a decimal.
func ToDecimal(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -Decimals)
}

// Parse reads a human decimal string such as "1050.25" into fixed point.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidDecimal, s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for constants. It panics on malformed input.
func MustParse(s string) *big.Int {
	x, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return x
}

// Format renders x as a human decimal string.
func Format(x *big.Int) string {
	return ToDecimal(x).String()
}
