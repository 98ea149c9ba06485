// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockSetAndAdvance(t *testing.T) {
	require := require.New(t)

	start := time.Unix(1_000, 0)
	clk := NewClockAt(start)
	require.Equal(int64(1_000), clk.Unix())

	clk.Advance(15 * time.Second)
	require.Equal(int64(1_015), clk.Unix())

	clk.Sync()
	require.WithinDuration(time.Now(), clk.Time(), time.Second)
}

func TestClockAdvanceFromGlobal(t *testing.T) {
	require := require.New(t)

	var clk Clock
	before := time.Now()
	clk.Advance(time.Hour)
	require.False(clk.Time().Before(before.Add(time.Hour)))
}
