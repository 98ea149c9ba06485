// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orders

import (
	"math/big"

	"github.com/luxfi/ids"

	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// FundingRecomputed is emitted whenever an operation advances a market's
// funding accumulator.
type FundingRecomputed struct {
	Market    string
	Rate      *big.Int
	Delta     *big.Int
	Value     *big.Int
	Timestamp int64
}

type OrderCommitted struct {
	Account         ids.ID
	Market          string
	SizeDelta       *big.Int
	AcceptablePrice *big.Int
	OraclePrice     *big.Int
	// FillPrice and the fees are estimates at the reference price.
	FillPrice      *big.Int
	OrderFee       *big.Int
	KeeperFee      *big.Int
	CommitmentTime int64
	Funding        FundingRecomputed
}

type OrderSettled struct {
	Account     ids.ID
	Market      string
	Settler     ids.ID
	SizeDelta   *big.Int
	OraclePrice *big.Int
	FillPrice   *big.Int
	OrderFee    *big.Int
	KeeperFee   *big.Int
	PnL         *big.Int
	// Funding realized into margin by the trade.
	AccruedFunding *big.Int
	Position       *perpetuals.Position
	SettlementTime int64
	Funding        FundingRecomputed
}

type OrderCancelled struct {
	Account        ids.ID
	Market         string
	Caller         ids.ID
	SizeDelta      *big.Int
	CommitmentTime int64
	// Expired is set when the order was past its max age.
	Expired bool
}

type CollateralModified struct {
	Account  ids.ID
	Market   string
	Amount   *big.Int
	Position *perpetuals.Position
	Funding  FundingRecomputed
}

type PositionLiquidated struct {
	Account         ids.ID
	Market          string
	Keeper          ids.ID
	Size            *big.Int
	Price           *big.Int
	RemainingMargin *big.Int
	Reward          *big.Int
	Funding         FundingRecomputed
}

// PositionView is a position marked to the current reference price with
// funding projected to now.
type PositionView struct {
	Position         *perpetuals.Position
	Price            *big.Int
	PnL              *big.Int
	AccruedFunding   *big.Int
	RemainingMargin  *big.Int
	LiquidationPrice *big.Int
	CanLiquidate     bool
}
