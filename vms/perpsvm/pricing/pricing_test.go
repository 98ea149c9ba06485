// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

var (
	f  = fixedpoint.New
	fp = fixedpoint.MustParse
)

func TestFillPrice(t *testing.T) {
	tests := []struct {
		name      string
		skew      *big.Int
		skewScale *big.Int
		sizeDelta *big.Int
		oracle    *big.Int
		want      *big.Int
	}{
		{
			name:      "buy into flat market",
			skew:      f(0),
			skewScale: f(1_000),
			sizeDelta: f(100),
			oracle:    f(1_000),
			want:      f(1_050),
		},
		{
			name:      "sell into flat market",
			skew:      f(0),
			skewScale: f(1_000),
			sizeDelta: f(-100),
			oracle:    f(1_000),
			want:      f(950),
		},
		{
			name:      "close long skew",
			skew:      f(100),
			skewScale: f(1_000),
			sizeDelta: f(-100),
			oracle:    f(1_000),
			want:      f(1_050),
		},
		{
			name:      "zero size is skew premium",
			skew:      f(-200),
			skewScale: f(1_000),
			sizeDelta: f(0),
			oracle:    f(1_000),
			want:      f(800),
		},
		{
			name:      "smallest skew scale",
			skew:      big.NewInt(1),
			skewScale: big.NewInt(1),
			sizeDelta: big.NewInt(1),
			oracle:    f(1),
			want:      fp("2.5"),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := FillPrice(test.skew, test.skewScale, test.sizeDelta, test.oracle)
			require.Zero(t, test.want.Cmp(got), "want %s got %s", fixedpoint.Format(test.want), fixedpoint.Format(got))
		})
	}
}

func TestFillPriceMonotonicInSize(t *testing.T) {
	require := require.New(t)

	for _, skew := range []*big.Int{f(-500), f(0), f(250)} {
		prev := FillPrice(skew, f(1_000), f(-1_000), f(1_000))
		for size := int64(-999); size <= 1_000; size += 7 {
			next := FillPrice(skew, f(1_000), f(size), f(1_000))
			require.GreaterOrEqual(next.Cmp(prev), 0, "skew %s size %d", skew, size)
			prev = next
		}
	}
}

func TestSplitSizeDelta(t *testing.T) {
	tests := []struct {
		name      string
		skew      *big.Int
		sizeDelta *big.Int
		maker     *big.Int
		taker     *big.Int
	}{
		{name: "flat", skew: f(0), sizeDelta: f(10), maker: f(0), taker: f(10)},
		{name: "increase long", skew: f(5), sizeDelta: f(10), maker: f(0), taker: f(10)},
		{name: "increase short", skew: f(-5), sizeDelta: f(-10), maker: f(0), taker: f(10)},
		{name: "reduce", skew: f(50), sizeDelta: f(-10), maker: f(10), taker: f(0)},
		{name: "exact close", skew: f(-10), sizeDelta: f(10), maker: f(10), taker: f(0)},
		{name: "flip", skew: f(4), sizeDelta: f(-10), maker: f(4), taker: f(6)},
		{name: "zero", skew: f(4), sizeDelta: f(0), maker: f(0), taker: f(0)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			maker, taker := SplitSizeDelta(test.skew, test.sizeDelta)
			require.Zero(test.maker.Cmp(maker))
			require.Zero(test.taker.Cmp(taker))
		})
	}
}

func TestOrderFee(t *testing.T) {
	require := require.New(t)

	makerFee := fp("0.0002")
	takerFee := fp("0.0006")

	// Opening into a flat market is all taker: 100 * 1050 * 0.0006 = 63.
	fee := OrderFee(f(100), f(1_050), f(0), makerFee, takerFee)
	require.Zero(fp("63").Cmp(fee))

	// Closing that skew is all maker: 100 * 1050 * 0.0002 = 21.
	fee = OrderFee(f(-100), f(1_050), f(100), makerFee, takerFee)
	require.Zero(fp("21").Cmp(fee))

	// Flipping splits at zero: 40 maker, 60 taker at price 1000.
	// 40*1000*0.0002 + 60*1000*0.0006 = 8 + 36 = 44.
	fee = OrderFee(f(-100), f(1_000), f(40), makerFee, takerFee)
	require.Zero(fp("44").Cmp(fee))
}

func TestOrderFeeNeverNegative(t *testing.T) {
	require := require.New(t)

	values := []*big.Int{f(-300), f(-1), f(0), f(1), f(300)}
	for _, skew := range values {
		for _, size := range values {
			for _, price := range []*big.Int{f(-1), f(0), f(1), f(2_000)} {
				fee := OrderFee(size, price, skew, fp("0.0001"), fp("0.001"))
				require.GreaterOrEqual(fee.Sign(), 0)
			}
		}
	}
}

func TestNotional(t *testing.T) {
	require.Zero(t, f(2_000).Cmp(Notional(f(-2), f(1_000))))
}
