// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vm defines the lifecycle of a VM hosted by a perps node.
package vm

import (
	"context"
	"net/http"

	"github.com/luxfi/database"
)

// VM defines the interface for a virtual machine
type VM interface {
	// Initialize opens the VM's state on db, applying genesis on first run.
	Initialize(context.Context, database.Database) error

	// SetState transitions the VM to the specified state
	SetState(context.Context, State) error

	// CreateHandlers returns the VM's HTTP handlers keyed by path suffix.
	CreateHandlers(context.Context) (map[string]http.Handler, error)

	// HealthCheck returns a health report, or an error if unhealthy.
	HealthCheck(context.Context) (interface{}, error)

	// Shutdown cleanly stops the VM
	Shutdown(context.Context) error

	// Version returns the VM version
	Version(context.Context) (string, error)
}

// State is the high-level lifecycle state of a VM instance.
type State uint8

const (
	// Unknown is the default / unset state.
	Unknown State = iota

	// Bootstrapping indicates the VM is loading state and not serving.
	Bootstrapping

	// NormalOp indicates the VM is fully operational and serving normally.
	NormalOp
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "Bootstrapping"
	case NormalOp:
		return "NormalOp"
	default:
		return "Unknown"
	}
}
