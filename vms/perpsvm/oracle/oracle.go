// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle provides the price sources the perps VM settles against.
//
// Two sources are combined: a reference feed (time-weighted, manipulation
// resistant) that orders are committed against, and an offchain feed that
// accepts signed-off price updates pushed by the settler.
package oracle

//go:generate go run go.uber.org/mock/mockgen -package=oraclemock -destination=oraclemock/feed.go -mock_names=Feed=Feed . Feed
//go:generate go run go.uber.org/mock/mockgen -package=oraclemock -destination=oraclemock/updater.go -mock_names=Updater=Updater . Updater

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/luxfi/ids"
)

var (
	ErrFeedNotFound        = errors.New("price feed not found")
	ErrInvalidOraclePrice  = errors.New("oracle price must be positive")
	ErrMalformedUpdate     = errors.New("malformed price update")
	ErrPriceUpdateRejected = errors.New("price update rejected")
	ErrStaleReference      = errors.New("reference price is stale")
)

// Price is a feed reading.
type Price struct {
	Value       *big.Int // Quote per base, 18 decimals
	PublishTime int64    // Unix seconds
}

// Feed reads prices.
type Feed interface {
	GetPrice(ctx context.Context, feedID ids.ID) (Price, error)
}

// Updater is a feed that accepts pushed update payloads.
type Updater interface {
	Feed
	PushUpdate(ctx context.Context, data []byte) error
}

// Observation is one accepted price update.
type Observation struct {
	FeedID      ids.ID
	Price       *big.Int
	PublishTime int64
}

// FeedIDFromName derives the id of a named feed, such as "ETH/USD".
func FeedIDFromName(name string) ids.ID {
	return ids.ID(sha256.Sum256([]byte(name)))
}
