// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orders

import (
	"errors"

	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

var (
	// Precondition violations
	ErrOrderFound       = errors.New("order already pending")
	ErrOrderNotFound    = errors.New("no pending order")
	ErrAccountNotFound  = errors.New("account not found")
	ErrUnauthorized     = errors.New("caller not authorized for account")
	ErrCancelNotAllowed = errors.New("order cannot be cancelled by caller yet")
	ErrZeroAmount       = errors.New("collateral amount must not be zero")

	// Timing violations
	ErrStalePrice    = errors.New("price published before order commitment")
	ErrStaleOrder    = errors.New("order too old to settle")
	ErrOrderNotReady = errors.New("order not ready for settlement")
	ErrInvalidPrice  = errors.New("price publish time outside settlement window")

	// Economic violations
	ErrPriceDivergenceTooHigh = errors.New("price divergence too high")
	ErrTransferFailed         = errors.New("value transfer failed")
)

// Kind groups errors by how a caller should react to them.
type Kind uint8

const (
	// Internal errors are not caused by the caller.
	Internal Kind = iota
	// Precondition errors are misuse of the order state machine. Retrying
	// the same call will fail again.
	Precondition
	// Timing errors mean the order is outside its settlement window. The
	// caller should wait or cancel.
	Timing
	// Economic errors mean the trade is unsafe or the market moved past the
	// caller's bound.
	Economic
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Timing:
		return "timing"
	case Economic:
		return "economic"
	default:
		return "internal"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{
		kind: Precondition,
		errs: []error{
			ErrOrderFound,
			ErrOrderNotFound,
			ErrAccountNotFound,
			ErrUnauthorized,
			ErrCancelNotAllowed,
			ErrZeroAmount,
			perpetuals.ErrMarketNotFound,
			perpetuals.ErrMarketExists,
			perpetuals.ErrInvalidMarket,
			perpetuals.ErrZeroSizeDelta,
			perpetuals.ErrCannotLiquidate,
			oracle.ErrPriceUpdateRejected,
			oracle.ErrMalformedUpdate,
		},
	},
	{
		kind: Timing,
		errs: []error{
			ErrStalePrice,
			ErrStaleOrder,
			ErrOrderNotReady,
			ErrInvalidPrice,
			oracle.ErrFeedNotFound,
			oracle.ErrNoObservations,
			oracle.ErrStaleReference,
		},
	},
	{
		kind: Economic,
		errs: []error{
			ErrPriceDivergenceTooHigh,
			ErrTransferFailed,
			perpetuals.ErrInsufficientMargin,
			perpetuals.ErrCanLiquidate,
			perpetuals.ErrPriceToleranceExceeded,
			perpetuals.ErrMaxMarketSizeExceeded,
			perpetuals.ErrInvalidFillPrice,
			perpetuals.ErrNonPositivePrice,
			oracle.ErrInvalidOraclePrice,
		},
	},
}

// Classify returns the kind of err. Unknown errors are Internal.
func Classify(err error) Kind {
	if err == nil {
		return Internal
	}
	for _, group := range kinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return Internal
}
