// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

func TestPushFeedKeepsNewest(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	feed := NewPushFeed(log.NewNoOpLogger(), 0)
	feedID := ids.GenerateTestID()

	_, err := feed.GetPrice(ctx, feedID)
	require.ErrorIs(err, ErrFeedNotFound)

	require.NoError(feed.Push(ctx, feedID, fixedpoint.New(1_000), 100))
	require.NoError(feed.Push(ctx, feedID, fixedpoint.New(1_010), 110))
	// Older data is accepted but does not replace the newer price.
	require.NoError(feed.Push(ctx, feedID, fixedpoint.New(990), 105))

	price, err := feed.GetPrice(ctx, feedID)
	require.NoError(err)
	require.Zero(fixedpoint.New(1_010).Cmp(price.Value))
	require.Equal(int64(110), price.PublishTime)
	require.Equal(1, feed.Len())
}

func TestPushFeedRejectsMalformed(t *testing.T) {
	require := require.New(t)

	feed := NewPushFeed(log.NewNoOpLogger(), 0)
	err := feed.PushUpdate(context.Background(), []byte{0xde, 0xad})
	require.ErrorIs(err, ErrMalformedUpdate)
	require.Zero(feed.Len())
}

func TestPushFeedNotifiesObservers(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	feed := NewPushFeed(log.NewNoOpLogger(), 0)
	feedID := ids.GenerateTestID()

	var observed []Observation
	feed.Subscribe(func(o Observation) {
		observed = append(observed, o)
	})

	data, err := EncodeUpdate([]Observation{{FeedID: feedID, Price: fixedpoint.New(5), PublishTime: 7}})
	require.NoError(err)

	require.NoError(feed.PushUpdate(ctx, data))
	// A replayed payload is a no-op.
	require.NoError(feed.PushUpdate(ctx, data))
	// Stale data is not observed.
	require.NoError(feed.Push(ctx, feedID, fixedpoint.New(4), 6))

	require.Len(observed, 1)
	require.Equal(int64(7), observed[0].PublishTime)
}

func TestPushFeedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	feed := NewPushFeed(log.NewNoOpLogger(), 0)
	err := feed.Push(ctx, ids.GenerateTestID(), fixedpoint.New(1), 1)
	require.ErrorIs(t, err, context.Canceled)
}
