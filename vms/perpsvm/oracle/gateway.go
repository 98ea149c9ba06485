// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/perps/utils/timer/mockable"
)

// Gateway is the single entry point the order controller uses for prices.
type Gateway struct {
	reference Feed
	offchain  Updater
	clock     *mockable.Clock

	// maxReferenceAge bounds how old the newest observation behind a
	// reference price may be. Zero disables the bound.
	maxReferenceAge time.Duration
}

// NewGateway returns a gateway reading committed prices from reference and
// settlement prices from offchain. Reference prices whose newest observation
// is older than maxReferenceAge, measured on clock, are rejected.
func NewGateway(reference Feed, offchain Updater, clock *mockable.Clock, maxReferenceAge time.Duration) *Gateway {
	if clock == nil {
		clock = &mockable.Clock{}
	}
	return &Gateway{
		reference:       reference,
		offchain:        offchain,
		clock:           clock,
		maxReferenceAge: maxReferenceAge,
	}
}

// ReferencePrice returns the reference price of feedID, failing with
// ErrStaleReference when its newest observation is too old to trade on.
func (g *Gateway) ReferencePrice(ctx context.Context, feedID ids.ID) (Price, error) {
	price, err := g.IndicativePrice(ctx, feedID)
	if err != nil {
		return Price{}, err
	}
	if g.maxReferenceAge <= 0 {
		return price, nil
	}
	if age := g.clock.Unix() - price.PublishTime; age > int64(g.maxReferenceAge/time.Second) {
		return Price{}, fmt.Errorf("%w: %s last observed %ds ago", ErrStaleReference, feedID, age)
	}
	return price, nil
}

// IndicativePrice returns the reference price of feedID without the age
// bound. It is meant for read-only views.
func (g *Gateway) IndicativePrice(ctx context.Context, feedID ids.ID) (Price, error) {
	price, err := g.reference.GetPrice(ctx, feedID)
	if err != nil {
		return Price{}, err
	}
	return price, validate(price)
}

// LatestPrice returns the last price pushed for feedID without pushing.
func (g *Gateway) LatestPrice(ctx context.Context, feedID ids.ID) (Price, error) {
	price, err := g.offchain.GetPrice(ctx, feedID)
	if err != nil {
		return Price{}, err
	}
	return price, validate(price)
}

// PushAndRead pushes data to the offchain feed and returns the resulting
// price of feedID. The push is synchronous and its failure is returned
// wrapped in ErrPriceUpdateRejected.
func (g *Gateway) PushAndRead(ctx context.Context, feedID ids.ID, data []byte) (Price, error) {
	if err := g.offchain.PushUpdate(ctx, data); err != nil {
		return Price{}, fmt.Errorf("%w: %w", ErrPriceUpdateRejected, err)
	}
	return g.LatestPrice(ctx, feedID)
}

func validate(p Price) error {
	if p.Value == nil || p.Value.Sign() <= 0 {
		return ErrInvalidOraclePrice
	}
	return nil
}
