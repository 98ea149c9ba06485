// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perpsvm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	perps "github.com/luxfi/perps"
	"github.com/luxfi/perps/utils/timer/mockable"
	"github.com/luxfi/perps/vms/perpsvm/api"
	"github.com/luxfi/perps/vms/perpsvm/config"
	"github.com/luxfi/perps/vms/perpsvm/keeper"
	"github.com/luxfi/perps/vms/perpsvm/ledger"
	"github.com/luxfi/perps/vms/perpsvm/metrics"
	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/orders"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
	"github.com/luxfi/perps/vms/perpsvm/state"
)

const Version = "1.0.0"

var (
	errNotInitialized     = errors.New("VM not initialized")
	errAlreadyInitialized = errors.New("VM already initialized")
	errUnknownState       = errors.New("unknown state")
	errShutdown           = errors.New("VM is shutting down")

	_ perps.VM = (*VM)(nil)
)

// VM hosts the perps markets: state, oracle feeds, order controller and
// keeper.
type VM struct {
	config.Config

	log        log.Logger
	registerer metric.Registerer
	metrics    metrics.Metrics
	clock      *mockable.Clock

	lock sync.RWMutex

	state      *state.State
	ledger     *ledger.Ledger
	push       *oracle.PushFeed
	controller *orders.Controller
	keeper     *keeper.Keeper

	bootstrapped  bool
	isInitialized bool
	shutdown      bool
}

// New returns an uninitialized VM. A nil registerer uses a private
// registry.
func New(cfg config.Config, logger log.Logger, registerer metric.Registerer) *VM {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	if registerer == nil {
		registerer = metric.NewRegistry()
	}
	return &VM{
		Config:     cfg,
		log:        logger,
		registerer: registerer,
		clock:      &mockable.Clock{},
	}
}

// Clock returns the clock every component of the VM reads time from.
func (vm *VM) Clock() *mockable.Clock {
	return vm.clock
}

// Initialize opens state on db, wires the components and applies genesis if
// the database is empty.
func (vm *VM) Initialize(_ context.Context, db database.Database) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.isInitialized {
		return errAlreadyInitialized
	}
	if err := vm.Config.Validate(); err != nil {
		return err
	}

	s, err := state.New(db, vm.MarketCacheSize)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	vm.state = s
	vm.ledger = ledger.New(s.DB())

	vm.push = oracle.NewPushFeed(vm.log, vm.ReplayCacheSize)
	twap := oracle.NewTWAPFeed(vm.TWAPWindow, vm.clock)
	vm.push.Subscribe(twap.Observe)

	vm.metrics, err = metrics.New(vm.registerer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	feeCollector, err := vm.FeeCollectorID()
	if err != nil {
		return err
	}
	if feeCollector == ids.Empty {
		feeCollector = ledger.FeeCollector
	}

	vm.controller, err = orders.New(orders.Config{
		Log:          vm.log,
		Clock:        vm.clock,
		State:        s,
		Gateway:      oracle.NewGateway(twap, vm.push, vm.clock, vm.ReferenceMaxAge),
		Accounts:     vm.ledger,
		Value:        vm.ledger,
		Metrics:      vm.metrics,
		FeeCollector: feeCollector,
	})
	if err != nil {
		return err
	}

	initialized, err := s.IsInitialized()
	if err != nil {
		return err
	}
	if !initialized {
		if err := vm.applyGenesis(); err != nil {
			return fmt.Errorf("failed to apply genesis: %w", err)
		}
	}

	if vm.Config.Keeper.Enabled {
		keeperID, err := vm.KeeperID()
		if err != nil {
			return err
		}
		vm.keeper = keeper.New(keeper.Config{
			Log:        vm.log,
			Clock:      vm.clock,
			Controller: vm.controller,
			ID:         keeperID,
			Interval:   vm.Config.Keeper.Interval,
		})
	}

	vm.isInitialized = true
	vm.log.Info("perps VM initialized",
		log.Bool("genesis", !initialized),
		log.Bool("keeper", vm.keeper != nil),
		log.Duration("twapWindow", vm.TWAPWindow),
		log.Duration("referenceMaxAge", vm.ReferenceMaxAge),
	)
	return nil
}

// applyGenesis creates the configured markets and accounts. Markets that
// already exist are kept, so a genesis interrupted after some markets were
// written can be applied again.
func (vm *VM) applyGenesis() error {
	for _, mc := range vm.Genesis.Markets {
		m, err := mc.Market()
		if err != nil {
			return err
		}
		err = vm.controller.CreateMarket(m)
		if err != nil && !errors.Is(err, perpetuals.ErrMarketExists) {
			return err
		}
	}

	accounts := make([]config.Account, 0, len(vm.Genesis.Accounts))
	for _, ac := range vm.Genesis.Accounts {
		a, err := ac.Account()
		if err != nil {
			return err
		}
		accounts = append(accounts, a)
	}
	return vm.controller.Update("genesis", func() error {
		for _, a := range accounts {
			if err := vm.ledger.CreateAccount(a.ID, a.Owner, a.Delegates...); err != nil {
				return err
			}
			if err := vm.ledger.Mint(a.ID, a.Balance); err != nil {
				return err
			}
		}
		return vm.state.SetInitialized()
	})
}

// SetState transitions the VM between bootstrapping and normal operation.
func (vm *VM) SetState(_ context.Context, s perps.State) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch s {
	case perps.Bootstrapping:
		vm.log.Info("perps VM entering bootstrap state")
		vm.bootstrapped = false
		return nil
	case perps.NormalOp:
		vm.log.Info("perps VM entering normal operation")
		vm.bootstrapped = true
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownState, s)
	}
}

// Controller returns the order controller. It is nil before Initialize.
func (vm *VM) Controller() *orders.Controller {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return vm.controller
}

// Keeper returns the keeper, or nil when it is disabled.
func (vm *VM) Keeper() *keeper.Keeper {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return vm.keeper
}

// Prices returns the feed price updates are pushed to.
func (vm *VM) Prices() oracle.Updater {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return vm.push
}

// CreateHandlers returns the JSON-RPC handler at the empty path suffix.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if !vm.isInitialized {
		return nil, errNotInitialized
	}
	service, err := api.NewService(api.Config{
		Log:        vm.log,
		Controller: vm.controller,
		Ledger:     vm.ledger,
		Prices:     vm.push,
	})
	if err != nil {
		return nil, err
	}
	handler, err := api.NewHandler(service, vm.metrics)
	if err != nil {
		return nil, err
	}
	return map[string]http.Handler{
		"": handler,
	}, nil
}

// HealthCheck reports the VM's components.
func (vm *VM) HealthCheck(context.Context) (interface{}, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.shutdown {
		return nil, errShutdown
	}
	if !vm.isInitialized {
		return nil, errNotInitialized
	}
	markets, err := vm.controller.Markets()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"healthy":       vm.bootstrapped,
		"bootstrapped":  vm.bootstrapped,
		"markets":       len(markets),
		"pendingOrders": len(vm.controller.PendingOrders()),
		"priceFeeds":    vm.push.Len(),
		"keeper":        vm.keeper != nil,
	}, nil
}

// Shutdown closes the VM's state. The database passed to Initialize is
// left open for its owner to close.
func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.shutdown {
		return nil
	}
	vm.shutdown = true
	vm.log.Info("shutting down perps VM")

	if vm.state != nil {
		if err := vm.state.Close(); err != nil {
			return fmt.Errorf("failed to close state: %w", err)
		}
	}
	return nil
}

// Version returns the VM version.
func (*VM) Version(context.Context) (string, error) {
	return Version, nil
}
