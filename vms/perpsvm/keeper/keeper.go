// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keeper periodically cancels expired orders and liquidates
// undercollateralized positions.
package keeper

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/perps/utils/timer/mockable"
	"github.com/luxfi/perps/vms/perpsvm/orders"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Second

var _ Controller = (*orders.Controller)(nil)

// Controller is the subset of the order controller the keeper drives.
type Controller interface {
	Markets() ([]*perpetuals.Market, error)
	ExpiredOrders(now int64) ([]*perpetuals.Order, error)
	CancelOrder(ctx context.Context, caller, account ids.ID, marketID string) (*orders.OrderCancelled, error)
	LiquidatablePositions(ctx context.Context, marketID string) ([]*perpetuals.Position, error)
	LiquidatePosition(ctx context.Context, keeper, account ids.ID, marketID string) (*orders.PositionLiquidated, error)
}

type Config struct {
	Log        log.Logger
	Clock      *mockable.Clock
	Controller Controller
	// ID is the account rewards are paid to.
	ID       ids.ID
	Interval time.Duration
}

// Keeper runs sweeps on a fixed interval.
type Keeper struct {
	log        log.Logger
	clock      *mockable.Clock
	controller Controller
	id         ids.ID
	interval   time.Duration
}

// SweepResult counts the actions one sweep took.
type SweepResult struct {
	Cancelled  int
	Liquidated int
}

func New(cfg Config) *Keeper {
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = &mockable.Clock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Keeper{
		log:        cfg.Log,
		clock:      cfg.Clock,
		controller: cfg.Controller,
		id:         cfg.ID,
		interval:   cfg.Interval,
	}
}

// Run sweeps every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.log.Info("keeper started",
		log.Stringer("id", k.id),
		log.Duration("interval", k.interval),
	)
	for {
		select {
		case <-ctx.Done():
			k.log.Info("keeper stopped")
			return nil
		case <-ticker.C:
			result := k.Sweep(ctx)
			if result.Cancelled > 0 || result.Liquidated > 0 {
				k.log.Info("keeper sweep",
					log.Int("cancelled", result.Cancelled),
					log.Int("liquidated", result.Liquidated),
				)
			}
		}
	}
}

// Sweep cancels every expired order, then liquidates every liquidatable
// position. Failures are logged and skipped.
func (k *Keeper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	expired, err := k.controller.ExpiredOrders(k.clock.Unix())
	if err != nil {
		k.log.Warn("failed to list expired orders", log.Err(err))
	}
	for _, o := range expired {
		if ctx.Err() != nil {
			return result
		}
		if _, err := k.controller.CancelOrder(ctx, k.id, o.Account, o.Market); err != nil {
			k.logSkip("cancel", o.Account, o.Market, err)
			continue
		}
		result.Cancelled++
	}

	markets, err := k.controller.Markets()
	if err != nil {
		k.log.Warn("failed to list markets", log.Err(err))
		return result
	}
	for _, m := range markets {
		positions, err := k.controller.LiquidatablePositions(ctx, m.ID)
		if err != nil {
			k.log.Debug("failed to list liquidatable positions",
				log.String("market", m.ID),
				log.Err(err),
			)
			continue
		}
		for _, p := range positions {
			if ctx.Err() != nil {
				return result
			}
			if _, err := k.controller.LiquidatePosition(ctx, k.id, p.Account, p.Market); err != nil {
				k.logSkip("liquidate", p.Account, p.Market, err)
				continue
			}
			result.Liquidated++
		}
	}
	return result
}

// logSkip logs a failed action. Losing a race to another caller is expected
// and only logged at debug.
func (k *Keeper) logSkip(action string, account ids.ID, market string, err error) {
	if errors.Is(err, orders.ErrOrderNotFound) || errors.Is(err, perpetuals.ErrCannotLiquidate) {
		k.log.Debug("keeper action skipped",
			log.String("action", action),
			log.Stringer("account", account),
			log.String("market", market),
			log.Err(err),
		)
		return
	}
	k.log.Warn("keeper action failed",
		log.String("action", action),
		log.Stringer("account", account),
		log.String("market", market),
		log.Err(err),
	)
}
