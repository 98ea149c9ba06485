// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orders implements the order lifecycle of the perps VM.
//
// Each (account, market) pair has one order slot that is either empty or
// holds a pending order. CommitOrder fills the slot after a dry run of the
// trade at the reference price. SettleOrder pushes fresh price data, checks
// that it falls in the order's settlement window and applies the trade.
// CancelOrder empties the slot without trading.
//
// Every mutating operation runs under the controller's write lock against
// the versioned state and either commits in full or aborts.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/perps/utils/timer/mockable"
	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/funding"
	"github.com/luxfi/perps/vms/perpsvm/metrics"
	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
	"github.com/luxfi/perps/vms/perpsvm/pricing"
	"github.com/luxfi/perps/vms/perpsvm/state"
)

const (
	opCommit     = "commit"
	opSettle     = "settle"
	opCancel     = "cancel"
	opCollateral = "collateral"
	opLiquidate  = "liquidate"
	opCreate     = "create_market"
)

var errMissingDependency = errors.New("missing controller dependency")

// AccountRegistry answers who may act for an account.
type AccountRegistry interface {
	Exists(account ids.ID) (bool, error)
	IsAuthorized(account, caller ids.ID) (bool, error)
}

// ValueTransfer moves quote value in and out of positions. Implementations
// must write through the controller's state database so transfers roll back
// with the operation that made them.
type ValueTransfer interface {
	Mint(to ids.ID, amount *big.Int) error
	Burn(from ids.ID, amount *big.Int) error
}

type Config struct {
	Log     log.Logger
	Clock   *mockable.Clock
	State   *state.State
	Gateway *oracle.Gateway

	Accounts AccountRegistry
	Value    ValueTransfer
	Metrics  metrics.Metrics

	// FeeCollector receives order fees.
	FeeCollector ids.ID
}

// Controller owns the order slots, positions and market aggregates.
type Controller struct {
	log          log.Logger
	clock        *mockable.Clock
	state        *state.State
	gateway      *oracle.Gateway
	accounts     AccountRegistry
	value        ValueTransfer
	metrics      metrics.Metrics
	feeCollector ids.ID

	lock    sync.RWMutex
	pending *pendingIndex
}

// New returns a controller over cfg.State and rebuilds the pending order
// index from it.
func New(cfg Config) (*Controller, error) {
	if cfg.State == nil || cfg.Gateway == nil || cfg.Accounts == nil || cfg.Value == nil || cfg.Metrics == nil {
		return nil, errMissingDependency
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = &mockable.Clock{}
	}

	c := &Controller{
		log:          cfg.Log,
		clock:        cfg.Clock,
		state:        cfg.State,
		gateway:      cfg.Gateway,
		accounts:     cfg.Accounts,
		value:        cfg.Value,
		metrics:      cfg.Metrics,
		feeCollector: cfg.FeeCollector,
		pending:      newPendingIndex(),
	}

	orders, err := cfg.State.Orders()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending orders: %w", err)
	}
	for _, o := range orders {
		c.pending.add(o)
	}
	c.metrics.SetPendingOrders(c.pending.len())
	return c, nil
}

// txn collects in-memory updates to run once the state commits.
type txn struct {
	onCommit []func()
}

func (t *txn) afterCommit(f func()) {
	t.onCommit = append(t.onCommit, f)
}

// execute runs fn as one atomic operation. The caller must hold the write
// lock.
func (c *Controller) execute(op, market string, fn func(*txn) error) error {
	tx := &txn{}
	if err := fn(tx); err != nil {
		c.state.Abort()
		kind := Classify(err)
		c.metrics.MarkRejected(op, kind.String())
		c.log.Debug("operation rejected",
			log.String("op", op),
			log.String("market", market),
			log.Stringer("kind", kind),
			log.Err(err),
		)
		return err
	}
	if err := c.state.Commit(); err != nil {
		c.state.Abort()
		c.metrics.MarkRejected(op, Internal.String())
		return fmt.Errorf("failed to commit %s: %w", op, err)
	}
	for _, f := range tx.onCommit {
		f()
	}
	c.metrics.SetPendingOrders(c.pending.len())
	return nil
}

// Update runs fn under the write lock as one atomic operation named op. It
// is used for writes by other components that share the state database,
// such as the account ledger.
func (c *Controller) Update(op string, fn func() error) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.execute(op, "", func(*txn) error {
		return fn()
	})
}

// View runs fn under the read lock so it observes only committed state.
func (c *Controller) View(fn func() error) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return fn()
}

// authorize checks account exists and caller may act for it.
func (c *Controller) authorize(account, caller ids.ID) error {
	exists, err := c.accounts.Exists(account)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}
	authorized, err := c.accounts.IsAuthorized(account, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return fmt.Errorf("%w: %s for %s", ErrUnauthorized, caller, account)
	}
	return nil
}

// recomputeFunding advances m's funding to now at price.
func (c *Controller) recomputeFunding(m *perpetuals.Market, price *big.Int, now int64) FundingRecomputed {
	rate, delta := funding.Recompute(&m.Funding, m.Skew, m.SkewScale, m.MaxFundingRate, price, now)
	m.UpdatedAt = now
	return FundingRecomputed{
		Market:    m.ID,
		Rate:      rate,
		Delta:     delta,
		Value:     fixedpoint.Copy(m.Funding.Value),
		Timestamp: now,
	}
}

// publishMarket reports market aggregates after a commit.
func (c *Controller) publishMarket(m *perpetuals.Market) {
	c.metrics.SetOpenInterest(m.ID, toFloat(m.LongOpenInterest()), toFloat(m.ShortOpenInterest()))
	c.metrics.SetFundingRate(m.ID, toFloat(m.Funding.Rate))
}

func toFloat(x *big.Int) float64 {
	return fixedpoint.ToDecimal(x).InexactFloat64()
}

// CreateMarket registers a new market. Aggregates not set by the caller
// start at zero.
func (c *Controller) CreateMarket(m *perpetuals.Market) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.execute(opCreate, m.ID, func(tx *txn) error {
		return c.createMarket(m, tx)
	})
}

func (c *Controller) createMarket(m *perpetuals.Market, tx *txn) error {
	if err := m.Validate(); err != nil {
		return err
	}
	exists, err := c.state.HasMarket(m.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", perpetuals.ErrMarketExists, m.ID)
	}

	now := c.clock.Unix()
	m = m.Clone()
	if m.Funding.Value == nil || m.Funding.Rate == nil {
		m.Funding = funding.NewState()
	}
	m.CreatedAt, m.UpdatedAt = now, now
	if err := c.state.PutMarket(m); err != nil {
		return err
	}

	tx.afterCommit(func() {
		c.publishMarket(m)
		c.log.Info("market created",
			log.String("market", m.ID),
			log.Stringer("feed", m.FeedID),
		)
	})
	return nil
}

// CommitOrder records a trade intent for account in market. The trade is
// dry run at the reference price and the order is rejected if it could not
// settle at that price.
func (c *Controller) CommitOrder(ctx context.Context, caller, account ids.ID, marketID string, sizeDelta, acceptablePrice *big.Int) (*OrderCommitted, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var event *OrderCommitted
	err := c.execute(opCommit, marketID, func(tx *txn) error {
		if fixedpoint.IsZero(sizeDelta) {
			return perpetuals.ErrZeroSizeDelta
		}
		if err := c.authorize(account, caller); err != nil {
			return err
		}
		m, err := c.state.GetMarket(marketID)
		if err != nil {
			return err
		}
		order, err := c.state.GetOrder(account, marketID)
		if err != nil {
			return err
		}
		if order.IsPending() {
			return fmt.Errorf("%w: %s in %s", ErrOrderFound, account, marketID)
		}

		price, err := c.gateway.ReferencePrice(ctx, m.FeedID)
		if err != nil {
			return err
		}
		now := c.clock.Unix()
		fundingEvent := c.recomputeFunding(m, price.Value, now)

		position, err := c.state.GetPosition(account, marketID)
		if err != nil {
			return err
		}
		fillPrice := pricing.FillPrice(m.Skew, m.SkewScale, sizeDelta, price.Value)
		result, err := perpetuals.PostTradeDetails(m, position, perpetuals.TradeParams{
			SizeDelta:       sizeDelta,
			OraclePrice:     price.Value,
			FillPrice:       fillPrice,
			AcceptablePrice: acceptablePrice,
			Fees:            m.Fees,
		})
		if err != nil {
			return err
		}

		order = &perpetuals.Order{
			Account:         account,
			Market:          marketID,
			SizeDelta:       fixedpoint.Copy(sizeDelta),
			AcceptablePrice: fixedpoint.Copy(acceptablePrice),
			CommitmentTime:  now,
		}
		if err := c.state.PutMarket(m); err != nil {
			return err
		}
		if err := c.state.PutOrder(order); err != nil {
			return err
		}

		event = &OrderCommitted{
			Account:         account,
			Market:          marketID,
			SizeDelta:       order.SizeDelta,
			AcceptablePrice: order.AcceptablePrice,
			OraclePrice:     price.Value,
			FillPrice:       fillPrice,
			OrderFee:        result.OrderFee,
			KeeperFee:       result.KeeperFee,
			CommitmentTime:  now,
			Funding:         fundingEvent,
		}
		tx.afterCommit(func() {
			c.pending.add(order)
			c.publishMarket(m)
			c.metrics.MarkOrder(marketID, metrics.Committed)
			c.log.Info("order committed",
				log.Stringer("account", account),
				log.String("market", marketID),
				log.String("sizeDelta", fixedpoint.Format(sizeDelta)),
				log.String("fillPrice", fixedpoint.Format(fillPrice)),
			)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// SettleOrder pushes updateData to the offchain feed and settles the
// pending order of account in market at the resulting price. The keeper fee
// is paid to settler.
func (c *Controller) SettleOrder(ctx context.Context, settler, account ids.ID, marketID string, updateData []byte) (*OrderSettled, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var event *OrderSettled
	err := c.execute(opSettle, marketID, func(tx *txn) error {
		order, err := c.state.GetOrder(account, marketID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return fmt.Errorf("%w: %s in %s", ErrOrderNotFound, account, marketID)
		}
		m, err := c.state.GetMarket(marketID)
		if err != nil {
			return err
		}

		// The reference is read before the push so the settling
		// observation cannot pull it toward itself.
		reference, err := c.gateway.ReferencePrice(ctx, m.FeedID)
		if err != nil {
			return err
		}
		fresh, err := c.gateway.PushAndRead(ctx, m.FeedID, updateData)
		if err != nil {
			return err
		}
		now := c.clock.Unix()
		if err := CheckReadiness(m.Orders, order.CommitmentTime, now, reference.Value, fresh); err != nil {
			return err
		}

		fundingEvent := c.recomputeFunding(m, fresh.Value, now)
		position, err := c.state.GetPosition(account, marketID)
		if err != nil {
			return err
		}
		fillPrice := pricing.FillPrice(m.Skew, m.SkewScale, order.SizeDelta, fresh.Value)
		result, err := perpetuals.PostTradeDetails(m, position, perpetuals.TradeParams{
			SizeDelta:       order.SizeDelta,
			OraclePrice:     fresh.Value,
			FillPrice:       fillPrice,
			AcceptablePrice: order.AcceptablePrice,
			Fees:            m.Fees,
		})
		if err != nil {
			return err
		}

		next := result.Position
		next.UpdatedAt = now
		m.ApplyPositionChange(position.Size, next.Size)

		if err := c.state.PutMarket(m); err != nil {
			return err
		}
		if err := c.state.PutPosition(next); err != nil {
			return err
		}
		if err := c.state.DeleteOrder(account, marketID); err != nil {
			return err
		}
		if err := c.value.Mint(settler, result.KeeperFee); err != nil {
			return fmt.Errorf("%w: keeper fee: %w", ErrTransferFailed, err)
		}
		if err := c.value.Mint(c.feeCollector, result.OrderFee); err != nil {
			return fmt.Errorf("%w: order fee: %w", ErrTransferFailed, err)
		}

		event = &OrderSettled{
			Account:        account,
			Market:         marketID,
			Settler:        settler,
			SizeDelta:      order.SizeDelta,
			OraclePrice:    fresh.Value,
			FillPrice:      fillPrice,
			OrderFee:       result.OrderFee,
			KeeperFee:      result.KeeperFee,
			PnL:            result.PnL,
			AccruedFunding: result.Funding,
			Position:       next.Clone(),
			SettlementTime: now,
			Funding:        fundingEvent,
		}
		tx.afterCommit(func() {
			c.pending.remove(order)
			c.publishMarket(m)
			c.metrics.MarkOrder(marketID, metrics.Settled)
			c.metrics.AddFees(marketID, toFloat(result.OrderFee), toFloat(result.KeeperFee))
			c.log.Info("order settled",
				log.Stringer("account", account),
				log.String("market", marketID),
				log.Stringer("settler", settler),
				log.String("fillPrice", fixedpoint.Format(fillPrice)),
				log.String("size", fixedpoint.Format(next.Size)),
			)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// CancelOrder clears the pending order of account in market. Callers
// authorized for the account may cancel at any time, anyone else only once
// the order is older than the market's max order age. No fee is charged.
func (c *Controller) CancelOrder(_ context.Context, caller, account ids.ID, marketID string) (*OrderCancelled, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var event *OrderCancelled
	err := c.execute(opCancel, marketID, func(tx *txn) error {
		order, err := c.state.GetOrder(account, marketID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return fmt.Errorf("%w: %s in %s", ErrOrderNotFound, account, marketID)
		}
		m, err := c.state.GetMarket(marketID)
		if err != nil {
			return err
		}

		now := c.clock.Unix()
		expired := now-order.CommitmentTime > m.Orders.MaxOrderAge
		if !expired {
			authorized, err := c.accounts.IsAuthorized(account, caller)
			if err != nil {
				return err
			}
			if !authorized {
				return fmt.Errorf("%w: %s for %s", ErrCancelNotAllowed, caller, account)
			}
		}
		if err := c.state.DeleteOrder(account, marketID); err != nil {
			return err
		}

		event = &OrderCancelled{
			Account:        account,
			Market:         marketID,
			Caller:         caller,
			SizeDelta:      order.SizeDelta,
			CommitmentTime: order.CommitmentTime,
			Expired:        expired,
		}
		tx.afterCommit(func() {
			c.pending.remove(order)
			c.metrics.MarkOrder(marketID, metrics.Cancelled)
			c.log.Info("order cancelled",
				log.Stringer("account", account),
				log.String("market", marketID),
				log.Stringer("caller", caller),
				log.Bool("expired", expired),
			)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ModifyCollateral deposits (amount > 0) or withdraws (amount < 0) margin
// for account in market. The position is marked to the reference price
// first. Withdrawals must leave the position above its minimum margin.
func (c *Controller) ModifyCollateral(ctx context.Context, caller, account ids.ID, marketID string, amount *big.Int) (*CollateralModified, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var event *CollateralModified
	err := c.execute(opCollateral, marketID, func(tx *txn) error {
		if fixedpoint.IsZero(amount) {
			return ErrZeroAmount
		}
		if err := c.authorize(account, caller); err != nil {
			return err
		}
		m, err := c.state.GetMarket(marketID)
		if err != nil {
			return err
		}
		order, err := c.state.GetOrder(account, marketID)
		if err != nil {
			return err
		}
		if order.IsPending() {
			return fmt.Errorf("%w: %s in %s", ErrOrderFound, account, marketID)
		}

		price, err := c.gateway.ReferencePrice(ctx, m.FeedID)
		if err != nil {
			return err
		}
		now := c.clock.Unix()
		fundingEvent := c.recomputeFunding(m, price.Value, now)

		position, err := c.state.GetPosition(account, marketID)
		if err != nil {
			return err
		}
		next := position.Clone()
		next.Margin = perpetuals.RemainingMargin(m, position, price.Value)
		next.Margin.Add(next.Margin, amount)
		if !fixedpoint.IsZero(next.Size) {
			next.LastPrice = fixedpoint.Copy(price.Value)
		}
		next.LastFundingValue = fixedpoint.Copy(m.Funding.Value)
		next.UpdatedAt = now

		if amount.Sign() < 0 {
			if err := checkWithdrawal(m, next, price.Value); err != nil {
				return err
			}
			if err := c.value.Mint(account, fixedpoint.Abs(amount)); err != nil {
				return fmt.Errorf("%w: withdraw: %w", ErrTransferFailed, err)
			}
		} else if err := c.value.Burn(account, amount); err != nil {
			return fmt.Errorf("%w: deposit: %w", ErrTransferFailed, err)
		}

		if err := c.state.PutMarket(m); err != nil {
			return err
		}
		if err := c.state.PutPosition(next); err != nil {
			return err
		}

		event = &CollateralModified{
			Account:  account,
			Market:   marketID,
			Amount:   fixedpoint.Copy(amount),
			Position: next.Clone(),
			Funding:  fundingEvent,
		}
		tx.afterCommit(func() {
			c.publishMarket(m)
			c.log.Info("collateral modified",
				log.Stringer("account", account),
				log.String("market", marketID),
				log.String("amount", fixedpoint.Format(amount)),
				log.String("margin", fixedpoint.Format(next.Margin)),
			)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// checkWithdrawal applies the post-trade margin rules to a position whose
// margin was just reduced.
func checkWithdrawal(m *perpetuals.Market, p *perpetuals.Position, price *big.Int) error {
	if p.Margin.Sign() < 0 {
		return fmt.Errorf("%w: margin %s", perpetuals.ErrInsufficientMargin, fixedpoint.Format(p.Margin))
	}
	if fixedpoint.IsZero(p.Size) {
		return nil
	}
	if required := perpetuals.MinimumMargin(m, p.Size, price); p.Margin.Cmp(required) < 0 {
		return fmt.Errorf("%w: margin %s below required %s",
			perpetuals.ErrInsufficientMargin,
			fixedpoint.Format(p.Margin),
			fixedpoint.Format(required),
		)
	}
	if p.Margin.Cmp(perpetuals.LiquidationMargin(m, p.Size, price)) <= 0 {
		return fmt.Errorf("%w: margin %s", perpetuals.ErrCanLiquidate, fixedpoint.Format(p.Margin))
	}
	return nil
}

// LiquidatePosition closes the position of account in market if its
// remaining margin at the reference price no longer covers the liquidation
// margin. The liquidation reward is minted to keeper and any pending order
// is dropped.
func (c *Controller) LiquidatePosition(ctx context.Context, keeper, account ids.ID, marketID string) (*PositionLiquidated, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var event *PositionLiquidated
	err := c.execute(opLiquidate, marketID, func(tx *txn) error {
		m, err := c.state.GetMarket(marketID)
		if err != nil {
			return err
		}
		price, err := c.gateway.ReferencePrice(ctx, m.FeedID)
		if err != nil {
			return err
		}
		now := c.clock.Unix()
		fundingEvent := c.recomputeFunding(m, price.Value, now)

		position, err := c.state.GetPosition(account, marketID)
		if err != nil {
			return err
		}
		if !perpetuals.CanLiquidate(m, position, price.Value) {
			return fmt.Errorf("%w: %s in %s", perpetuals.ErrCannotLiquidate, account, marketID)
		}
		remaining := perpetuals.RemainingMargin(m, position, price.Value)
		m.ApplyPositionChange(position.Size, nil)

		order, err := c.state.GetOrder(account, marketID)
		if err != nil {
			return err
		}
		if order.IsPending() {
			if err := c.state.DeleteOrder(account, marketID); err != nil {
				return err
			}
		}
		if err := c.state.PutMarket(m); err != nil {
			return err
		}
		if err := c.state.PutPosition(perpetuals.NewPosition(account, marketID)); err != nil {
			return err
		}
		reward := fixedpoint.Copy(m.Fees.LiquidationReward)
		if err := c.value.Mint(keeper, reward); err != nil {
			return fmt.Errorf("%w: liquidation reward: %w", ErrTransferFailed, err)
		}

		event = &PositionLiquidated{
			Account:         account,
			Market:          marketID,
			Keeper:          keeper,
			Size:            fixedpoint.Copy(position.Size),
			Price:           price.Value,
			RemainingMargin: remaining,
			Reward:          reward,
			Funding:         fundingEvent,
		}
		tx.afterCommit(func() {
			if order.IsPending() {
				c.pending.remove(order)
			}
			c.publishMarket(m)
			c.metrics.MarkLiquidated(marketID)
			c.log.Info("position liquidated",
				log.Stringer("account", account),
				log.String("market", marketID),
				log.Stringer("keeper", keeper),
				log.String("size", fixedpoint.Format(position.Size)),
				log.String("price", fixedpoint.Format(price.Value)),
			)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
