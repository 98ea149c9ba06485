// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orders

import (
	"context"
	"fmt"
	"math/big"

	"github.com/luxfi/ids"

	"github.com/luxfi/perps/vms/perpsvm/funding"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
	"github.com/luxfi/perps/vms/perpsvm/pricing"
)

// GetMarket returns the stored market.
func (c *Controller) GetMarket(marketID string) (*perpetuals.Market, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.state.GetMarket(marketID)
}

// Markets returns every market ordered by symbol.
func (c *Controller) Markets() ([]*perpetuals.Market, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.state.Markets()
}

// FillPrice returns the price a trade of sizeDelta would fill at in market
// if the oracle read oraclePrice.
func (c *Controller) FillPrice(marketID string, sizeDelta, oraclePrice *big.Int) (*big.Int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	m, err := c.state.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	return pricing.FillPrice(m.Skew, m.SkewScale, sizeDelta, oraclePrice), nil
}

// OrderFee returns the fee a trade of sizeDelta would pay in market at the
// current skew and reference price.
func (c *Controller) OrderFee(ctx context.Context, marketID string, sizeDelta *big.Int) (*big.Int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	m, err := c.state.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	price, err := c.gateway.IndicativePrice(ctx, m.FeedID)
	if err != nil {
		return nil, err
	}
	fillPrice := pricing.FillPrice(m.Skew, m.SkewScale, sizeDelta, price.Value)
	return pricing.OrderFee(sizeDelta, fillPrice, m.Skew, m.Fees.MakerFee, m.Fees.TakerFee), nil
}

// GetOrder returns the pending order of account in market.
func (c *Controller) GetOrder(account ids.ID, marketID string) (*perpetuals.Order, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	order, err := c.state.GetOrder(account, marketID)
	if err != nil {
		return nil, err
	}
	if !order.IsPending() {
		return nil, fmt.Errorf("%w: %s in %s", ErrOrderNotFound, account, marketID)
	}
	return order, nil
}

// GetPosition returns the position of account in market marked to the
// reference price, with funding projected to now.
func (c *Controller) GetPosition(ctx context.Context, account ids.ID, marketID string) (*PositionView, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	m, err := c.state.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	price, err := c.gateway.IndicativePrice(ctx, m.FeedID)
	if err != nil {
		return nil, err
	}
	m = c.projectFunding(m, price.Value)

	position, err := c.state.GetPosition(account, marketID)
	if err != nil {
		return nil, err
	}
	return &PositionView{
		Position:         position,
		Price:            price.Value,
		PnL:              perpetuals.PnL(position, price.Value),
		AccruedFunding:   perpetuals.AccruedFunding(m, position),
		RemainingMargin:  perpetuals.RemainingMargin(m, position, price.Value),
		LiquidationPrice: perpetuals.LiquidationPrice(m, position),
		CanLiquidate:     perpetuals.CanLiquidate(m, position, price.Value),
	}, nil
}

// projectFunding returns a copy of m with funding advanced to now.
func (c *Controller) projectFunding(m *perpetuals.Market, price *big.Int) *perpetuals.Market {
	projected := m.Clone()
	projected.Funding, _, _ = funding.Project(m.Funding, m.Skew, m.SkewScale, m.MaxFundingRate, price, c.clock.Unix())
	return projected
}

// PendingOrders returns every pending order, oldest first.
func (c *Controller) PendingOrders() []*perpetuals.Order {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.pending.all()
}

// ExpiredOrders returns pending orders older than their market's max order
// age at now. Anyone may cancel them.
func (c *Controller) ExpiredOrders(now int64) ([]*perpetuals.Order, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var (
		expired  []*perpetuals.Order
		maxAges  = make(map[string]int64)
		firstErr error
	)
	c.pending.committedBefore(now, func(o *perpetuals.Order) bool {
		maxAge, ok := maxAges[o.Market]
		if !ok {
			m, err := c.state.GetMarket(o.Market)
			if err != nil {
				firstErr = err
				return false
			}
			maxAge = m.Orders.MaxOrderAge
			maxAges[o.Market] = maxAge
		}
		if now-o.CommitmentTime > maxAge {
			expired = append(expired, o.Clone())
		}
		return true
	})
	return expired, firstErr
}

// LiquidatablePositions returns the positions in market that can be
// liquidated at the reference price.
func (c *Controller) LiquidatablePositions(ctx context.Context, marketID string) ([]*perpetuals.Position, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	m, err := c.state.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	price, err := c.gateway.IndicativePrice(ctx, m.FeedID)
	if err != nil {
		return nil, err
	}
	m = c.projectFunding(m, price.Value)

	positions, err := c.state.Positions(marketID)
	if err != nil {
		return nil, err
	}
	var liquidatable []*perpetuals.Position
	for _, p := range positions {
		if perpetuals.CanLiquidate(m, p, price.Value) {
			liquidatable = append(liquidatable, p)
		}
	}
	return liquidatable, nil
}
