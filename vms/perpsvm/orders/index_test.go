// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orders

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

func TestPendingIndex(t *testing.T) {
	require := require.New(t)

	newOrder := func(market string, at int64) *perpetuals.Order {
		return &perpetuals.Order{
			Account:        ids.GenerateTestID(),
			Market:         market,
			SizeDelta:      fixedpoint.New(1),
			CommitmentTime: at,
		}
	}
	a := newOrder("ETH-PERP", 30)
	b := newOrder("BTC-PERP", 10)
	c := newOrder("ETH-PERP", 20)
	d := newOrder("BTC-PERP", 20)

	index := newPendingIndex()
	for _, o := range []*perpetuals.Order{a, b, c, d} {
		index.add(o)
	}
	require.Equal(4, index.len())

	var markets []string
	var times []int64
	for _, o := range index.all() {
		markets = append(markets, o.Market)
		times = append(times, o.CommitmentTime)
	}
	require.Equal([]int64{10, 20, 20, 30}, times)
	require.Equal([]string{"BTC-PERP", "BTC-PERP", "ETH-PERP", "ETH-PERP"}, markets)

	var before []*perpetuals.Order
	index.committedBefore(20, func(o *perpetuals.Order) bool {
		before = append(before, o)
		return true
	})
	require.Len(before, 1)
	require.Equal(b.Account, before[0].Account)

	index.remove(c)
	require.Equal(3, index.len())

	// Stored orders are copies.
	a.SizeDelta.SetInt64(0)
	for _, o := range index.all() {
		require.True(o.IsPending())
	}
}
