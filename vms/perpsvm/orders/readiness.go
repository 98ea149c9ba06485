// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orders

import (
	"fmt"
	"math/big"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// CheckReadiness validates that fresh may settle an order committed at
// commitmentTime. Checks run in a fixed order and the first failure is
// returned.
func CheckReadiness(policy perpetuals.OrderPolicy, commitmentTime, now int64, reference *big.Int, fresh oracle.Price) error {
	if fresh.PublishTime < commitmentTime {
		return fmt.Errorf("%w: published %d, committed %d", ErrStalePrice, fresh.PublishTime, commitmentTime)
	}
	if age := now - commitmentTime; age > policy.MaxOrderAge {
		return fmt.Errorf("%w: age %ds exceeds %ds", ErrStaleOrder, age, policy.MaxOrderAge)
	}

	delta := fresh.PublishTime - commitmentTime
	if delta < policy.MinOrderAge {
		return fmt.Errorf("%w: %ds since commitment, need %ds", ErrOrderNotReady, delta, policy.MinOrderAge)
	}
	lo := policy.MinOrderAge + policy.PublishTimeMin
	hi := policy.MaxOrderAge + policy.PublishTimeMax
	if delta < lo || delta > hi {
		return fmt.Errorf("%w: %ds not in [%d, %d]", ErrInvalidPrice, delta, lo, hi)
	}

	return checkDivergence(policy.PriceDeviationRatio, reference, fresh.Value)
}

// checkDivergence rejects |reference - fresh| / min(reference, fresh) above
// maxRatio. The comparison is cross multiplied so no precision is lost.
func checkDivergence(maxRatio, reference, fresh *big.Int) error {
	diff := fixedpoint.Abs(new(big.Int).Sub(reference, fresh))
	lhs := new(big.Int).Mul(diff, fixedpoint.Unit)
	rhs := new(big.Int).Mul(fixedpoint.Copy(maxRatio), fixedpoint.Min(reference, fresh))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("%w: reference %s, fresh %s",
			ErrPriceDivergenceTooHigh,
			fixedpoint.Format(reference),
			fixedpoint.Format(fresh),
		)
	}
	return nil
}
