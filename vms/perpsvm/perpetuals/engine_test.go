// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perpetuals

import (
	"math/big"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/funding"
	"github.com/luxfi/perps/vms/perpsvm/pricing"
)

var (
	f  = fixedpoint.New
	fp = fixedpoint.MustParse
)

func newTestMarket() *Market {
	return &Market{
		ID:             "ETH-PERP",
		FeedID:         ids.GenerateTestID(),
		Skew:           f(0),
		Size:           f(0),
		SkewScale:      f(1_000),
		MaxFundingRate: fp("0.1"),
		Funding:        funding.NewState(),
		Fees: FeeSchedule{
			MakerFee:          fp("0.0002"),
			TakerFee:          fp("0.0006"),
			KeeperFee:         f(2),
			KeeperFeeMaxRatio: fp("0.1"),
			LiquidationReward: f(5),
		},
		Margin: MarginPolicy{
			MinMarginRatio:         fp("0.1"),
			MaintenanceMarginRatio: fp("0.05"),
			MaxMarketSize:          f(0),
		},
		Orders: OrderPolicy{
			MinOrderAge:         10,
			MaxOrderAge:         100,
			PublishTimeMin:      0,
			PublishTimeMax:      5,
			PriceDeviationRatio: fp("0.05"),
		},
	}
}

func depositedPosition(margin int64) *Position {
	p := NewPosition(ids.GenerateTestID(), "ETH-PERP")
	p.Margin = f(margin)
	return p
}

func tradeParams(m *Market, sizeDelta, oracle, acceptable *big.Int) TradeParams {
	return TradeParams{
		SizeDelta:       sizeDelta,
		OraclePrice:     oracle,
		FillPrice:       pricing.FillPrice(m.Skew, m.SkewScale, sizeDelta, oracle),
		AcceptablePrice: acceptable,
		Fees:            m.Fees,
	}
}

func TestPostTradeDetailsOpen(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	current := depositedPosition(20_000)

	result, err := PostTradeDetails(m, current, tradeParams(m, f(100), f(1_000), f(1_100)))
	require.NoError(err)

	// 100 * 1050 * 0.0006 = 63, all taker.
	require.Zero(f(63).Cmp(result.OrderFee))
	require.Zero(f(2).Cmp(result.KeeperFee))
	require.Zero(f(100).Cmp(result.Position.Size))
	require.Zero(f(1_050).Cmp(result.Position.LastPrice))
	require.Zero(f(19_935).Cmp(result.Position.Margin))
	require.Equal(current.Account, result.Position.Account)

	// The input position is untouched.
	require.Zero(current.Size.Sign())
	require.Zero(f(20_000).Cmp(current.Margin))
}

func TestPostTradeDetailsInputValidation(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	current := depositedPosition(20_000)

	_, err := PostTradeDetails(m, current, tradeParams(m, f(0), f(1_000), nil))
	require.ErrorIs(err, ErrZeroSizeDelta)

	_, err = PostTradeDetails(m, current, tradeParams(m, f(1), f(0), nil))
	require.ErrorIs(err, ErrNonPositivePrice)

	// Selling 3000 into a skew scale of 1000 drives the fill below zero.
	_, err = PostTradeDetails(m, current, tradeParams(m, f(-3_000), f(1_000), nil))
	require.ErrorIs(err, ErrInvalidFillPrice)
}

func TestPostTradeDetailsInsufficientMargin(t *testing.T) {
	tests := []struct {
		name   string
		margin int64
	}{
		{name: "below minimum ratio", margin: 5_000},
		{name: "negative after fees", margin: 10},
		{name: "no margin", margin: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := newTestMarket()
			_, err := PostTradeDetails(m, depositedPosition(test.margin), tradeParams(m, f(100), f(1_000), nil))
			require.ErrorIs(t, err, ErrInsufficientMargin)
		})
	}
}

func TestPostTradeDetailsCanLiquidate(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	m.Margin.MinMarginRatio = fp("0.01")

	// 3000 - 63 - 2 = 2935 <= 100*1000*0.05 + 5.
	_, err := PostTradeDetails(m, depositedPosition(3_000), tradeParams(m, f(100), f(1_000), nil))
	require.ErrorIs(err, ErrCanLiquidate)
}

func TestPostTradeDetailsPriceTolerance(t *testing.T) {
	tests := []struct {
		name       string
		sizeDelta  *big.Int
		acceptable *big.Int
		wantErr    error
	}{
		{name: "buy above bound", sizeDelta: f(100), acceptable: f(1_040), wantErr: ErrPriceToleranceExceeded},
		{name: "buy at bound", sizeDelta: f(100), acceptable: f(1_050), wantErr: nil},
		{name: "sell below bound", sizeDelta: f(-100), acceptable: f(960), wantErr: ErrPriceToleranceExceeded},
		{name: "sell above bound", sizeDelta: f(-100), acceptable: f(940), wantErr: nil},
		{name: "unbounded", sizeDelta: f(-100), acceptable: nil, wantErr: nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := newTestMarket()
			_, err := PostTradeDetails(m, depositedPosition(20_000), tradeParams(m, test.sizeDelta, f(1_000), test.acceptable))
			require.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestPostTradeDetailsReducingBelowMinimum(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	current := depositedPosition(9_000)
	current.Size = f(100)
	current.LastPrice = f(1_000)

	// Shrinking the position is allowed even though 90 units need 9000 of
	// margin, because the margin ratio improves.
	result, err := PostTradeDetails(m, current, tradeParams(m, f(-10), f(1_000), nil))
	require.NoError(err)
	require.Zero(f(90).Cmp(result.Position.Size))
	require.Equal(-1, result.Position.Margin.Cmp(MinimumMargin(m, result.Position.Size, f(1_000))))

	// Growing it is not.
	_, err = PostTradeDetails(m, current, tradeParams(m, f(10), f(1_000), nil))
	require.ErrorIs(err, ErrInsufficientMargin)
}

func TestPostTradeDetailsClose(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	m.Skew = f(100)
	m.Size = f(100)
	current := depositedPosition(10_000)
	current.Size = f(100)
	current.LastPrice = f(1_000)

	result, err := PostTradeDetails(m, current, tradeParams(m, f(-100), f(1_000), nil))
	require.NoError(err)
	require.Zero(result.Position.Size.Sign())

	// Closing toward zero skew is all maker: 100 * 1050 * 0.0002 = 21.
	require.Zero(f(21).Cmp(result.OrderFee))
	// pnl = 100 * (1050 - 1000) = 5000.
	require.Zero(f(5_000).Cmp(result.PnL))
	require.Zero(f(10_000+5_000-21-2).Cmp(result.Position.Margin))
}

func TestPostTradeDetailsRealizesFunding(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	m.Funding.Value = f(10)
	current := depositedPosition(20_000)
	current.Size = f(100)
	current.LastPrice = f(1_000)
	current.LastFundingValue = f(0)

	require.Zero(f(-1_000).Cmp(AccruedFunding(m, current)))

	result, err := PostTradeDetails(m, current, tradeParams(m, f(10), f(1_000), nil))
	require.NoError(err)
	require.Zero(f(-1_000).Cmp(result.Funding))
	require.Zero(f(10).Cmp(result.Position.LastFundingValue))
}

func TestPostTradeDetailsMaxMarketSize(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	m.Margin.MaxMarketSize = f(150)
	m.Skew = f(100)
	m.Size = f(100)

	_, err := PostTradeDetails(m, depositedPosition(1_000_000), tradeParams(m, f(100), f(1_000), nil))
	require.ErrorIs(err, ErrMaxMarketSizeExceeded)

	_, err = PostTradeDetails(m, depositedPosition(1_000_000), tradeParams(m, f(-100), f(1_000), nil))
	require.NoError(err)
}

func TestKeeperFeeBound(t *testing.T) {
	require := require.New(t)

	fees := newTestMarket().Fees
	require.Zero(f(2).Cmp(KeeperFee(fees, f(1_000))))
	require.Zero(f(1).Cmp(KeeperFee(fees, f(10))))
	require.Zero(KeeperFee(fees, f(-10)).Sign())
}

func TestLiquidation(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	p := depositedPosition(10_000)
	p.Size = f(100)
	p.LastPrice = f(1_000)

	require.False(CanLiquidate(m, p, f(948)))
	require.True(CanLiquidate(m, p, f(947)))
	require.False(CanLiquidate(m, NewPosition(ids.Empty, m.ID), f(1)))

	liq := LiquidationPrice(m, p)
	require.Equal(1, liq.Cmp(f(947)))
	require.Equal(-1, liq.Cmp(f(948)))

	short := depositedPosition(10_000)
	short.Size = f(-100)
	short.LastPrice = f(1_000)
	require.False(CanLiquidate(m, short, f(1_040)))
	require.True(CanLiquidate(m, short, f(1_050)))
	liq = LiquidationPrice(m, short)
	require.True(liq.Cmp(f(1_047)) > 0 && liq.Cmp(f(1_048)) < 0)
}

func TestApplyPositionChange(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	m.ApplyPositionChange(f(0), f(100))
	m.ApplyPositionChange(f(0), f(-40))
	require.Zero(f(60).Cmp(m.Skew))
	require.Zero(f(140).Cmp(m.Size))
	require.Zero(f(100).Cmp(m.LongOpenInterest()))
	require.Zero(f(40).Cmp(m.ShortOpenInterest()))

	m.ApplyPositionChange(f(100), f(-20))
	require.Zero(f(-60).Cmp(m.Skew))
	require.Zero(f(60).Cmp(m.Size))
}

func TestMarketValidate(t *testing.T) {
	require := require.New(t)

	require.NoError(newTestMarket().Validate())

	m := newTestMarket()
	m.SkewScale = f(0)
	require.ErrorIs(m.Validate(), ErrInvalidMarket)

	m = newTestMarket()
	m.Orders.MinOrderAge = 200
	require.ErrorIs(m.Validate(), ErrInvalidMarket)

	m = newTestMarket()
	m.Orders.PublishTimeMin = 60
	m.Orders.PublishTimeMax = -40
	require.ErrorIs(m.Validate(), ErrInvalidMarket)

	m = newTestMarket()
	m.Fees.TakerFee = f(-1)
	require.ErrorIs(m.Validate(), ErrInvalidMarket)

	for _, id := range []string{"", "ETH/PERP", "ETH PERP"} {
		m = newTestMarket()
		m.ID = id
		require.ErrorIs(m.Validate(), ErrInvalidMarket)
	}
}

func TestClonesAreDeep(t *testing.T) {
	require := require.New(t)

	m := newTestMarket()
	c := m.Clone()
	c.Skew.SetInt64(7)
	c.Funding.Value.SetInt64(7)
	c.Fees.MakerFee.SetInt64(7)
	require.Zero(m.Skew.Sign())
	require.Zero(m.Funding.Value.Sign())
	require.Zero(fp("0.0002").Cmp(m.Fees.MakerFee))

	p := depositedPosition(1)
	pc := p.Clone()
	pc.Margin.SetInt64(0)
	require.Zero(f(1).Cmp(p.Margin))
	require.Equal(Flat, p.Side())
}
