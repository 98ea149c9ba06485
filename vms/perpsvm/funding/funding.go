// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package funding tracks the cumulative funding accumulator of a market.
//
// The funding rate is proportional to skew/skewScale, clamped to [-1, 1] and
// scaled by the market's max daily funding rate. The accumulator holds funding
// per unit of size, in quote, since market creation. A position owes
// size * (accumulator_now - accumulator_at_last_touch).
package funding

import (
	"math/big"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

// SecondsPerDay is the period max funding rates are quoted over.
const SecondsPerDay = 86_400

var secondsPerDay = big.NewInt(SecondsPerDay)

// State is the persisted funding state of a market.
type State struct {
	// Value is the cumulative funding per unit of size.
	Value *big.Int `json:"value"`
	// Rate is the daily rate in force since LastUpdated.
	Rate *big.Int `json:"rate"`
	// LastUpdated is the unix time of the last recompute. Zero before the
	// first trade.
	LastUpdated int64 `json:"lastUpdated"`
}

// NewState returns a zeroed funding state.
func NewState() State {
	return State{
		Value: new(big.Int),
		Rate:  new(big.Int),
	}
}

// Clone deep-copies s.
func (s State) Clone() State {
	return State{
		Value:       fixedpoint.Copy(s.Value),
		Rate:        fixedpoint.Copy(s.Rate),
		LastUpdated: s.LastUpdated,
	}
}

// CurrentRate returns clamp(skew/skewScale, -1, 1) * maxFundingRate.
func CurrentRate(skew, skewScale, maxFundingRate *big.Int) *big.Int {
	proportional := fixedpoint.Div(skew, skewScale)
	proportional = fixedpoint.Clamp(proportional, fixedpoint.Neg(fixedpoint.Unit), fixedpoint.Unit)
	return fixedpoint.Mul(proportional, maxFundingRate)
}

// Accrual returns rate * elapsed / 1 day * price, the accumulator increase
// over elapsed seconds.
func Accrual(rate, price *big.Int, elapsed int64) *big.Int {
	if elapsed <= 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(rate, big.NewInt(elapsed))
	num.Mul(num, price)
	den := new(big.Int).Mul(secondsPerDay, fixedpoint.Unit)
	return num.Quo(num, den)
}

// Project returns what s would become if recomputed at now without changing s.
func Project(s State, skew, skewScale, maxFundingRate, price *big.Int, now int64) (next State, rate, delta *big.Int) {
	next = s.Clone()
	rate = CurrentRate(skew, skewScale, maxFundingRate)
	delta = new(big.Int)

	if s.LastUpdated != 0 {
		// The skew has not changed since LastUpdated, so the current skew is
		// the skew that was in force over the whole window.
		delta = Accrual(rate, price, now-s.LastUpdated)
		next.Value.Add(next.Value, delta)
	}
	if now > next.LastUpdated {
		next.LastUpdated = now
	}
	next.Rate = rate
	return next, rate, delta
}

// Recompute accrues funding into s up to now and returns the new rate and the
// accumulator delta. Calling it twice with the same now accrues nothing the
// second time.
func Recompute(s *State, skew, skewScale, maxFundingRate, price *big.Int, now int64) (rate, delta *big.Int) {
	next, rate, delta := Project(*s, skew, skewScale, maxFundingRate, price, now)
	*s = next
	return rate, delta
}

// AccruedFunding returns the funding credited to a position of size since its
// snapshot was taken: -size * (value - snapshot). Positive skew makes longs
// pay.
func AccruedFunding(size, value, snapshot *big.Int) *big.Int {
	diff := new(big.Int).Sub(fixedpoint.Copy(value), fixedpoint.Copy(snapshot))
	return fixedpoint.Neg(fixedpoint.Mul(size, diff))
}
