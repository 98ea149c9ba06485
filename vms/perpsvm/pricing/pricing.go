// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pricing holds the pure execution price and order fee functions.
// All arguments are 18-decimal fixed point values.
package pricing

import (
	"math/big"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

var two = big.NewInt(2)

// FillPrice returns the price a trade of sizeDelta executes at.
//
// Price impact is linear in skew. The trade moves skew from skew to
// skew+sizeDelta and pays the oracle price adjusted by the average of the two
// points, normalized by skewScale:
//
//	fill = oracle * (1 + (skew + (skew + sizeDelta)) / 2 / skewScale)
//	     = oracle * (2*skewScale + 2*skew + sizeDelta) / (2*skewScale)
//
// The second form is evaluated as one exact product followed by a single
// truncating division, so no precision is lost and nothing overflows.
// skewScale must be positive.
func FillPrice(skew, skewScale, sizeDelta, oraclePrice *big.Int) *big.Int {
	den := new(big.Int).Mul(two, skewScale)

	num := new(big.Int).Mul(two, skew)
	num.Add(num, den)
	num.Add(num, sizeDelta)
	num.Mul(num, oraclePrice)

	return num.Quo(num, den)
}

// SplitSizeDelta returns the absolute maker and taker portions of sizeDelta
// given the market skew before the trade. The maker portion is the part that
// moves skew toward zero. Anything past the zero crossing is taker flow.
func SplitSizeDelta(skew, sizeDelta *big.Int) (maker, taker *big.Int) {
	absDelta := fixedpoint.Abs(sizeDelta)
	if sizeDelta.Sign() == 0 || skew.Sign() == 0 || skew.Sign() == sizeDelta.Sign() {
		return new(big.Int), absDelta
	}

	maker = fixedpoint.Min(absDelta, fixedpoint.Abs(skew))
	taker = new(big.Int).Sub(absDelta, maker)
	return maker, taker
}

// OrderFee returns the fee charged for a trade of sizeDelta filled at
// fillPrice against the given pre-trade skew:
//
//	fee = (|maker| * makerFee + |taker| * takerFee) * fillPrice
//
// The fee is never negative for non-negative rates. A non-positive fill price
// yields zero.
func OrderFee(sizeDelta, fillPrice, skew, makerFee, takerFee *big.Int) *big.Int {
	if fillPrice.Sign() <= 0 {
		return new(big.Int)
	}

	maker, taker := SplitSizeDelta(skew, sizeDelta)

	weighted := new(big.Int).Mul(maker, makerFee)
	weighted.Add(weighted, new(big.Int).Mul(taker, takerFee))
	weighted.Mul(weighted, fillPrice)

	scale := new(big.Int).Mul(fixedpoint.Unit, fixedpoint.Unit)
	fee := weighted.Quo(weighted, scale)
	if fee.Sign() < 0 {
		return new(big.Int)
	}
	return fee
}

// Notional returns |size| * price.
func Notional(size, price *big.Int) *big.Int {
	return fixedpoint.Mul(fixedpoint.Abs(size), price)
}
