// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package funding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

var (
	f  = fixedpoint.New
	fp = fixedpoint.MustParse
)

func TestCurrentRate(t *testing.T) {
	require := require.New(t)

	maxRate := fp("0.1")

	require.Zero(fp("0.01").Cmp(CurrentRate(f(100), f(1_000), maxRate)))
	require.Zero(fp("-0.05").Cmp(CurrentRate(f(-500), f(1_000), maxRate)))
	require.Zero(maxRate.Cmp(CurrentRate(f(5_000), f(1_000), maxRate)))
	require.Zero(fixedpoint.Neg(maxRate).Cmp(CurrentRate(f(-5_000), f(1_000), maxRate)))
	require.Zero(CurrentRate(f(0), f(1_000), maxRate).Sign())
}

func TestRecomputeInitializes(t *testing.T) {
	require := require.New(t)

	s := NewState()
	rate, delta := Recompute(&s, f(100), f(1_000), fp("0.1"), f(1_000), 5_000)
	require.Zero(fp("0.01").Cmp(rate))
	require.Zero(delta.Sign())
	require.Zero(s.Value.Sign())
	require.Equal(int64(5_000), s.LastUpdated)
}

func TestRecomputeAccrues(t *testing.T) {
	require := require.New(t)

	s := NewState()
	Recompute(&s, f(100), f(1_000), fp("0.1"), f(1_000), 1_000)

	// 0.01/day for one full day at price 1000 accrues 10 per unit of size.
	rate, delta := Recompute(&s, f(100), f(1_000), fp("0.1"), f(1_000), 1_000+SecondsPerDay)
	require.Zero(fp("0.01").Cmp(rate))
	require.Zero(f(10).Cmp(delta))
	require.Zero(f(10).Cmp(s.Value))
	require.Zero(fp("0.01").Cmp(s.Rate))

	// Same timestamp again is a no-op accrual.
	_, delta = Recompute(&s, f(100), f(1_000), fp("0.1"), f(1_000), 1_000+SecondsPerDay)
	require.Zero(delta.Sign())
	require.Zero(f(10).Cmp(s.Value))
}

func TestRecomputeIgnoresClockRegression(t *testing.T) {
	require := require.New(t)

	s := NewState()
	Recompute(&s, f(100), f(1_000), fp("0.1"), f(1_000), 2_000)
	_, delta := Recompute(&s, f(100), f(1_000), fp("0.1"), f(1_000), 1_500)
	require.Zero(delta.Sign())
	require.Equal(int64(2_000), s.LastUpdated)
}

func TestProjectDoesNotMutate(t *testing.T) {
	require := require.New(t)

	s := NewState()
	s.LastUpdated = 1_000
	next, _, delta := Project(s, f(-100), f(1_000), fp("0.1"), f(1_000), 1_000+SecondsPerDay/2)
	require.Zero(f(-5).Cmp(delta))
	require.Zero(f(-5).Cmp(next.Value))
	require.Zero(s.Value.Sign())
	require.Equal(int64(1_000), s.LastUpdated)
}

func TestAccruedFunding(t *testing.T) {
	require := require.New(t)

	// Accumulator rose by 10: a long of 2 pays 20 and a short of 2 earns 20.
	require.Zero(f(-20).Cmp(AccruedFunding(f(2), f(15), f(5))))
	require.Zero(f(20).Cmp(AccruedFunding(f(-2), f(15), f(5))))
	require.Zero(AccruedFunding(f(0), f(15), f(5)).Sign())
}
