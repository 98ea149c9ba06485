// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package perpsvm implements a perpetual futures VM.
//
// Traders commit orders against a time-weighted reference price and have
// them settled later by a keeper that pushes a fresh oracle price. Fill
// prices include a premium proportional to market skew, funding accrues
// continuously toward the side that reduces skew, and undercollateralized
// positions are liquidated for a fixed reward.
package perpsvm

import (
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	perps "github.com/luxfi/perps"
	"github.com/luxfi/perps/vms/perpsvm/config"
)

var (
	// VMID is the unique identifier for the perps VM
	VMID = [32]byte{'p', 'e', 'r', 'p', 's', 'v', 'm'}

	_ perps.Factory = (*Factory)(nil)
)

// Factory creates new perps VM instances.
type Factory struct {
	config.Config

	// Registerer receives the VM's metrics. Nil uses a private registry.
	Registerer metric.Registerer
}

// New creates an uninitialized VM with the factory's configuration.
func (f *Factory) New(logger log.Logger) (perps.VM, error) {
	return New(f.Config, logger, f.Registerer), nil
}
