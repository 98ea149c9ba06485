// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perpetuals

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/luxfi/ids"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/funding"
)

var marketIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Side represents the position side (long or short)
type Side uint8

const (
	Flat Side = iota
	Long
	Short
)

func (s Side) String() string {
	switch s {
	case Flat:
		return "flat"
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// SideOf returns the side of a signed size.
func SideOf(size *big.Int) Side {
	switch {
	case size == nil || size.Sign() == 0:
		return Flat
	case size.Sign() > 0:
		return Long
	default:
		return Short
	}
}

// FeeSchedule holds the fee parameters of a market. Ratios are fixed point
// fractions, KeeperFee and LiquidationReward are quote amounts.
type FeeSchedule struct {
	MakerFee          *big.Int `json:"makerFee"`
	TakerFee          *big.Int `json:"takerFee"`
	KeeperFee         *big.Int `json:"keeperFee"`
	KeeperFeeMaxRatio *big.Int `json:"keeperFeeMaxRatio"`
	LiquidationReward *big.Int `json:"liquidationReward"`
}

// Clone creates a deep copy of the fee schedule
func (f FeeSchedule) Clone() FeeSchedule {
	return FeeSchedule{
		MakerFee:          fixedpoint.Copy(f.MakerFee),
		TakerFee:          fixedpoint.Copy(f.TakerFee),
		KeeperFee:         fixedpoint.Copy(f.KeeperFee),
		KeeperFeeMaxRatio: fixedpoint.Copy(f.KeeperFeeMaxRatio),
		LiquidationReward: fixedpoint.Copy(f.LiquidationReward),
	}
}

// MarginPolicy bounds the leverage a market allows.
type MarginPolicy struct {
	// MinMarginRatio is the margin/notional ratio a trade must leave behind.
	MinMarginRatio *big.Int `json:"minMarginRatio"`
	// MaintenanceMarginRatio is the ratio below which a position can be
	// liquidated.
	MaintenanceMarginRatio *big.Int `json:"maintenanceMarginRatio"`
	// MaxMarketSize caps open interest on each side. Zero disables the cap.
	MaxMarketSize *big.Int `json:"maxMarketSize"`
}

// Clone creates a deep copy of the margin policy
func (m MarginPolicy) Clone() MarginPolicy {
	return MarginPolicy{
		MinMarginRatio:         fixedpoint.Copy(m.MinMarginRatio),
		MaintenanceMarginRatio: fixedpoint.Copy(m.MaintenanceMarginRatio),
		MaxMarketSize:          fixedpoint.Copy(m.MaxMarketSize),
	}
}

// OrderPolicy is the settlement timing policy of a market. Ages are seconds.
type OrderPolicy struct {
	MinOrderAge    int64 `json:"minOrderAge"`
	MaxOrderAge    int64 `json:"maxOrderAge"`
	PublishTimeMin int64 `json:"publishTimeMin"`
	PublishTimeMax int64 `json:"publishTimeMax"`
	// PriceDeviationRatio is the tolerated divergence between the reference
	// price and the settlement price.
	PriceDeviationRatio *big.Int `json:"priceDeviationRatio"`
}

// Market is a perpetual futures market
type Market struct {
	// Market symbol (e.g., "ETH-PERP")
	ID string `json:"id"`
	// Oracle price feed
	FeedID ids.ID `json:"feedID"`
	// Net long minus short size
	Skew *big.Int `json:"skew"`
	// Total absolute open interest
	Size           *big.Int      `json:"size"`
	SkewScale      *big.Int      `json:"skewScale"`
	MaxFundingRate *big.Int      `json:"maxFundingRate"` // Per day
	Funding        funding.State `json:"funding"`
	Fees           FeeSchedule   `json:"fees"`
	Margin         MarginPolicy  `json:"margin"`
	Orders         OrderPolicy   `json:"orders"`
	CreatedAt      int64         `json:"createdAt"`
	UpdatedAt      int64         `json:"updatedAt"`
}

// Clone creates a deep copy of the market
func (m *Market) Clone() *Market {
	c := *m
	c.Skew = fixedpoint.Copy(m.Skew)
	c.Size = fixedpoint.Copy(m.Size)
	c.SkewScale = fixedpoint.Copy(m.SkewScale)
	c.MaxFundingRate = fixedpoint.Copy(m.MaxFundingRate)
	c.Funding = m.Funding.Clone()
	c.Fees = m.Fees.Clone()
	c.Margin = m.Margin.Clone()
	c.Orders.PriceDeviationRatio = fixedpoint.Copy(m.Orders.PriceDeviationRatio)
	return &c
}

// Validate checks the static parameters of the market.
func (m *Market) Validate() error {
	switch {
	case !marketIDPattern.MatchString(m.ID):
		return fmt.Errorf("%w: market id %q", ErrInvalidMarket, m.ID)
	case m.SkewScale == nil || m.SkewScale.Sign() <= 0:
		return fmt.Errorf("%w: %s skew scale must be positive", ErrInvalidMarket, m.ID)
	case m.Orders.MinOrderAge < 0 || m.Orders.MinOrderAge > m.Orders.MaxOrderAge:
		return fmt.Errorf("%w: %s order ages must satisfy 0 <= min <= max", ErrInvalidMarket, m.ID)
	case m.Orders.MinOrderAge+m.Orders.PublishTimeMin > m.Orders.MaxOrderAge+m.Orders.PublishTimeMax:
		return fmt.Errorf("%w: %s publish time window is empty", ErrInvalidMarket, m.ID)
	}

	nonNegative := map[string]*big.Int{
		"maxFundingRate":         m.MaxFundingRate,
		"makerFee":               m.Fees.MakerFee,
		"takerFee":               m.Fees.TakerFee,
		"keeperFee":              m.Fees.KeeperFee,
		"keeperFeeMaxRatio":      m.Fees.KeeperFeeMaxRatio,
		"liquidationReward":      m.Fees.LiquidationReward,
		"minMarginRatio":         m.Margin.MinMarginRatio,
		"maintenanceMarginRatio": m.Margin.MaintenanceMarginRatio,
		"maxMarketSize":          m.Margin.MaxMarketSize,
		"priceDeviationRatio":    m.Orders.PriceDeviationRatio,
	}
	for name, v := range nonNegative {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%w: %s %s must not be negative", ErrInvalidMarket, m.ID, name)
		}
	}
	return nil
}

// LongOpenInterest returns (Size + Skew) / 2.
func (m *Market) LongOpenInterest() *big.Int {
	oi := new(big.Int).Add(fixedpoint.Copy(m.Size), fixedpoint.Copy(m.Skew))
	return oi.Quo(oi, big.NewInt(2))
}

// ShortOpenInterest returns (Size - Skew) / 2.
func (m *Market) ShortOpenInterest() *big.Int {
	oi := new(big.Int).Sub(fixedpoint.Copy(m.Size), fixedpoint.Copy(m.Skew))
	return oi.Quo(oi, big.NewInt(2))
}

// ApplyPositionChange moves skew and open interest for a position going from
// prevSize to nextSize.
func (m *Market) ApplyPositionChange(prevSize, nextSize *big.Int) {
	prev := fixedpoint.Copy(prevSize)
	next := fixedpoint.Copy(nextSize)

	skew := fixedpoint.Copy(m.Skew)
	skew.Add(skew, next)
	skew.Sub(skew, prev)
	m.Skew = skew

	size := fixedpoint.Copy(m.Size)
	size.Add(size, fixedpoint.Abs(next))
	size.Sub(size, fixedpoint.Abs(prev))
	m.Size = size
}

// Order is a committed, not yet settled, trade intent. A zero SizeDelta means
// no order is pending.
type Order struct {
	Account         ids.ID   `json:"account"`
	Market          string   `json:"market"`
	SizeDelta       *big.Int `json:"sizeDelta"`
	AcceptablePrice *big.Int `json:"acceptablePrice"` // Zero means unbounded
	CommitmentTime  int64    `json:"commitmentTime"`
}

// IsPending reports whether the order slot is occupied.
func (o *Order) IsPending() bool {
	return o != nil && o.SizeDelta != nil && o.SizeDelta.Sign() != 0
}

// Clone creates a deep copy of the order
func (o *Order) Clone() *Order {
	return &Order{
		Account:         o.Account,
		Market:          o.Market,
		SizeDelta:       fixedpoint.Copy(o.SizeDelta),
		AcceptablePrice: fixedpoint.Copy(o.AcceptablePrice),
		CommitmentTime:  o.CommitmentTime,
	}
}

// Position is an account's exposure in one market. Margin accumulates
// realized pnl and funding at every modification, and LastPrice is the price
// it was last marked at.
type Position struct {
	Account          ids.ID   `json:"account"`
	Market           string   `json:"market"`
	Size             *big.Int `json:"size"`
	LastPrice        *big.Int `json:"lastPrice"`
	Margin           *big.Int `json:"margin"`
	LastFundingValue *big.Int `json:"lastFundingValue"`
	UpdatedAt        int64    `json:"updatedAt"`
}

// NewPosition returns an empty position for account in market.
func NewPosition(account ids.ID, market string) *Position {
	return &Position{
		Account:          account,
		Market:           market,
		Size:             new(big.Int),
		LastPrice:        new(big.Int),
		Margin:           new(big.Int),
		LastFundingValue: new(big.Int),
	}
}

// Clone creates a deep copy of the position
func (p *Position) Clone() *Position {
	return &Position{
		Account:          p.Account,
		Market:           p.Market,
		Size:             fixedpoint.Copy(p.Size),
		LastPrice:        fixedpoint.Copy(p.LastPrice),
		Margin:           fixedpoint.Copy(p.Margin),
		LastFundingValue: fixedpoint.Copy(p.LastFundingValue),
		UpdatedAt:        p.UpdatedAt,
	}
}

// Side returns the side of the position.
func (p *Position) Side() Side {
	return SideOf(p.Size)
}

// IsEmpty reports whether the position holds neither size nor margin.
func (p *Position) IsEmpty() bool {
	return fixedpoint.IsZero(p.Size) && fixedpoint.IsZero(p.Margin)
}

// TradeParams threads one trade through validation. It is built once per
// call so every check sees the same prices.
type TradeParams struct {
	SizeDelta       *big.Int
	OraclePrice     *big.Int
	FillPrice       *big.Int
	AcceptablePrice *big.Int
	Fees            FeeSchedule
}

// TradeResult is the projected outcome of a trade.
type TradeResult struct {
	Position  *Position
	OrderFee  *big.Int
	KeeperFee *big.Int
	// PnL and Funding are what was realized into margin.
	PnL     *big.Int
	Funding *big.Int
}
