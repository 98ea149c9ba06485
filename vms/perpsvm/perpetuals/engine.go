// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perpetuals

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/funding"
	"github.com/luxfi/perps/vms/perpsvm/pricing"
)

var (
	// Errors
	ErrMarketNotFound         = errors.New("market not found")
	ErrMarketExists           = errors.New("market already exists")
	ErrInvalidMarket          = errors.New("invalid market")
	ErrPositionNotFound       = errors.New("position not found")
	ErrZeroSizeDelta          = errors.New("size delta must not be zero")
	ErrInvalidFillPrice       = errors.New("fill price must be positive")
	ErrNonPositivePrice       = errors.New("oracle price must be positive")
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrCanLiquidate           = errors.New("position would be immediately liquidatable")
	ErrPriceToleranceExceeded = errors.New("fill price exceeds acceptable price")
	ErrMaxMarketSizeExceeded  = errors.New("max market size exceeded")
	ErrCannotLiquidate        = errors.New("position cannot be liquidated")
)

// PnL returns size * (price - lastPrice), the profit of marking the position
// to price.
func PnL(p *Position, price *big.Int) *big.Int {
	if p == nil || fixedpoint.IsZero(p.Size) {
		return new(big.Int)
	}
	diff := new(big.Int).Sub(price, fixedpoint.Copy(p.LastPrice))
	return fixedpoint.Mul(p.Size, diff)
}

// AccruedFunding returns the funding owed to (positive) or by (negative) the
// position against the market's current accumulator.
func AccruedFunding(m *Market, p *Position) *big.Int {
	if p == nil || fixedpoint.IsZero(p.Size) {
		return new(big.Int)
	}
	return funding.AccruedFunding(p.Size, m.Funding.Value, p.LastFundingValue)
}

// RemainingMargin returns margin + pnl(price) + accrued funding. It may be
// negative for an underwater position.
func RemainingMargin(m *Market, p *Position, price *big.Int) *big.Int {
	if p == nil {
		return new(big.Int)
	}
	remaining := fixedpoint.Copy(p.Margin)
	remaining.Add(remaining, PnL(p, price))
	remaining.Add(remaining, AccruedFunding(m, p))
	return remaining
}

// MinimumMargin returns the margin a position of size must hold after a trade.
func MinimumMargin(m *Market, size, price *big.Int) *big.Int {
	return fixedpoint.Mul(pricing.Notional(size, price), fixedpoint.Copy(m.Margin.MinMarginRatio))
}

// LiquidationMargin returns the margin at or below which a position of size
// can be liquidated: notional * maintenanceMarginRatio + liquidationReward.
func LiquidationMargin(m *Market, size, price *big.Int) *big.Int {
	lm := fixedpoint.Mul(pricing.Notional(size, price), fixedpoint.Copy(m.Margin.MaintenanceMarginRatio))
	return lm.Add(lm, fixedpoint.Copy(m.Fees.LiquidationReward))
}

// CanLiquidate reports whether the position is open and its remaining margin
// at price no longer covers the liquidation margin.
func CanLiquidate(m *Market, p *Position, price *big.Int) bool {
	if p == nil || fixedpoint.IsZero(p.Size) {
		return false
	}
	return RemainingMargin(m, p, price).Cmp(LiquidationMargin(m, p.Size, price)) <= 0
}

// LiquidationPrice returns the oracle price at which the position becomes
// liquidatable, or zero if it never does.
//
//	margin + size*(p - last) + funding = |size|*p*mmr + reward
//	p = (size*last + reward - margin - funding) / (size - |size|*mmr)
func LiquidationPrice(m *Market, p *Position) *big.Int {
	if p == nil || fixedpoint.IsZero(p.Size) {
		return new(big.Int)
	}

	num := fixedpoint.Mul(p.Size, fixedpoint.Copy(p.LastPrice))
	num.Add(num, fixedpoint.Copy(m.Fees.LiquidationReward))
	num.Sub(num, fixedpoint.Copy(p.Margin))
	num.Sub(num, AccruedFunding(m, p))

	den := new(big.Int).Sub(p.Size, fixedpoint.Mul(fixedpoint.Abs(p.Size), fixedpoint.Copy(m.Margin.MaintenanceMarginRatio)))
	if den.Sign() == 0 {
		return new(big.Int)
	}

	price := fixedpoint.Div(num, den)
	if price.Sign() < 0 {
		return new(big.Int)
	}
	return price
}

// KeeperFee returns the keeper reward for a trade, bounded so that it never
// takes more than KeeperFeeMaxRatio of the margin left after the order fee.
func KeeperFee(fees FeeSchedule, marginAfterOrderFee *big.Int) *big.Int {
	free := fixedpoint.Max(marginAfterOrderFee, new(big.Int))
	bound := fixedpoint.Mul(free, fixedpoint.Copy(fees.KeeperFeeMaxRatio))
	return fixedpoint.Min(fixedpoint.Copy(fees.KeeperFee), bound)
}

// PostTradeDetails projects current through the trade described by params
// and validates the result. It has no side effects: the caller applies the
// returned position. current may be nil for an account that never traded.
func PostTradeDetails(m *Market, current *Position, params TradeParams) (*TradeResult, error) {
	switch {
	case fixedpoint.IsZero(params.SizeDelta):
		return nil, ErrZeroSizeDelta
	case params.OraclePrice == nil || params.OraclePrice.Sign() <= 0:
		return nil, ErrNonPositivePrice
	case params.FillPrice == nil || params.FillPrice.Sign() <= 0:
		return nil, ErrInvalidFillPrice
	}
	if current == nil {
		current = &Position{}
	}
	fees := params.Fees

	orderFee := pricing.OrderFee(
		params.SizeDelta,
		params.FillPrice,
		fixedpoint.Copy(m.Skew),
		fixedpoint.Copy(fees.MakerFee),
		fixedpoint.Copy(fees.TakerFee),
	)

	pnl := PnL(current, params.FillPrice)
	accrued := AccruedFunding(m, current)

	margin := fixedpoint.Copy(current.Margin)
	margin.Add(margin, pnl)
	margin.Add(margin, accrued)
	margin.Sub(margin, orderFee)

	keeperFee := KeeperFee(fees, margin)
	margin.Sub(margin, keeperFee)

	next := &Position{
		Account:          current.Account,
		Market:           m.ID,
		Size:             new(big.Int).Add(fixedpoint.Copy(current.Size), params.SizeDelta),
		LastPrice:        new(big.Int).Set(params.FillPrice),
		Margin:           margin,
		LastFundingValue: fixedpoint.Copy(m.Funding.Value),
		UpdatedAt:        current.UpdatedAt,
	}

	if err := checkMarketSize(m, current.Size, next.Size); err != nil {
		return nil, err
	}
	if err := checkMargin(m, current, next, params.OraclePrice); err != nil {
		return nil, err
	}
	if next.Size.Sign() != 0 && next.Margin.Cmp(LiquidationMargin(m, next.Size, params.OraclePrice)) <= 0 {
		return nil, fmt.Errorf("%w: margin %s", ErrCanLiquidate, fixedpoint.Format(next.Margin))
	}
	if err := checkAcceptablePrice(params); err != nil {
		return nil, err
	}

	return &TradeResult{
		Position:  next,
		OrderFee:  orderFee,
		KeeperFee: keeperFee,
		PnL:       pnl,
		Funding:   accrued,
	}, nil
}

// checkMargin rejects trades that leave the position below the minimum margin
// ratio. A trade that shrinks the position without flipping it may stay below
// the minimum as long as it does not make the margin ratio worse.
func checkMargin(m *Market, current, next *Position, oraclePrice *big.Int) error {
	if next.Margin.Sign() < 0 {
		return fmt.Errorf("%w: margin %s", ErrInsufficientMargin, fixedpoint.Format(next.Margin))
	}
	if next.Size.Sign() == 0 {
		return nil
	}

	required := MinimumMargin(m, next.Size, oraclePrice)
	if next.Margin.Cmp(required) >= 0 {
		return nil
	}

	currentSize := fixedpoint.Copy(current.Size)
	reducing := fixedpoint.SameSide(currentSize, next.Size) &&
		fixedpoint.Abs(next.Size).Cmp(fixedpoint.Abs(currentSize)) < 0
	if reducing {
		// next/|nextSize| >= cur/|curSize|, cross multiplied. The oracle price
		// cancels from both notionals.
		cur := RemainingMargin(m, current, oraclePrice)
		lhs := new(big.Int).Mul(next.Margin, fixedpoint.Abs(currentSize))
		rhs := new(big.Int).Mul(cur, fixedpoint.Abs(next.Size))
		if lhs.Cmp(rhs) >= 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: margin %s below required %s",
		ErrInsufficientMargin,
		fixedpoint.Format(next.Margin),
		fixedpoint.Format(required),
	)
}

func checkMarketSize(m *Market, prevSize, nextSize *big.Int) error {
	maxSize := m.Margin.MaxMarketSize
	if fixedpoint.IsZero(maxSize) {
		return nil
	}

	projected := m.Clone()
	projected.ApplyPositionChange(prevSize, nextSize)

	longs, shorts := projected.LongOpenInterest(), projected.ShortOpenInterest()
	if longs.Cmp(maxSize) > 0 && longs.Cmp(m.LongOpenInterest()) > 0 {
		return fmt.Errorf("%w: long open interest %s", ErrMaxMarketSizeExceeded, fixedpoint.Format(longs))
	}
	if shorts.Cmp(maxSize) > 0 && shorts.Cmp(m.ShortOpenInterest()) > 0 {
		return fmt.Errorf("%w: short open interest %s", ErrMaxMarketSizeExceeded, fixedpoint.Format(shorts))
	}
	return nil
}

// checkAcceptablePrice rejects buys filling above and sells filling below the
// caller's bound. A nil or zero bound accepts any price.
func checkAcceptablePrice(params TradeParams) error {
	bound := params.AcceptablePrice
	if fixedpoint.IsZero(bound) {
		return nil
	}
	buy := params.SizeDelta.Sign() > 0
	if (buy && params.FillPrice.Cmp(bound) > 0) || (!buy && params.FillPrice.Cmp(bound) < 0) {
		return fmt.Errorf("%w: fill %s, acceptable %s",
			ErrPriceToleranceExceeded,
			fixedpoint.Format(params.FillPrice),
			fixedpoint.Format(bound),
		)
	}
	return nil
}
