// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perpsvm

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	perps "github.com/luxfi/perps"
	"github.com/luxfi/perps/vms/perpsvm/api"
	"github.com/luxfi/perps/vms/perpsvm/config"
	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

func testConfig(balance string) (config.Config, ids.ID) {
	account := ids.GenerateTestID()
	cfg := config.DefaultConfig()
	cfg.Keeper.Enabled = false
	cfg.Genesis.Accounts = []config.AccountConfig{{
		ID:      account.String(),
		Owner:   ids.GenerateTestID().String(),
		Balance: balance,
	}}
	return cfg, account
}

func TestInitializeAppliesGenesisOnce(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := memdb.New()

	cfg, account := testConfig("1000")
	first := New(cfg, log.NewNoOpLogger(), nil)
	require.NoError(first.Initialize(ctx, db))
	require.ErrorIs(first.Initialize(ctx, db), errAlreadyInitialized)

	m, err := first.Controller().GetMarket("ETH-PERP")
	require.NoError(err)
	require.Zero(m.Skew.Sign())

	balance, err := first.ledger.Balance(account)
	require.NoError(err)
	require.Zero(fixedpoint.New(1_000).Cmp(balance))

	// A second start over the same database keeps the state it finds.
	cfg.Genesis.Accounts[0].Balance = "5"
	second := New(cfg, log.NewNoOpLogger(), nil)
	require.NoError(second.Initialize(ctx, db))
	balance, err = second.ledger.Balance(account)
	require.NoError(err)
	require.Zero(fixedpoint.New(1_000).Cmp(balance))
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TWAPWindow = 0
	err := New(cfg, nil, nil).Initialize(context.Background(), memdb.New())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestKeeperFollowsConfig(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	cfg, _ := testConfig("")
	vm := New(cfg, nil, nil)
	require.NoError(vm.Initialize(ctx, memdb.New()))
	require.Nil(vm.Keeper())

	cfg.Keeper.Enabled = true
	vm = New(cfg, nil, nil)
	require.NoError(vm.Initialize(ctx, memdb.New()))
	require.NotNil(vm.Keeper())
}

func TestHealthCheck(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	cfg, _ := testConfig("")
	vm := New(cfg, nil, nil)
	_, err := vm.HealthCheck(ctx)
	require.ErrorIs(err, errNotInitialized)

	require.NoError(vm.Initialize(ctx, memdb.New()))
	require.NoError(vm.SetState(ctx, perps.NormalOp))
	require.ErrorIs(vm.SetState(ctx, perps.Unknown), errUnknownState)

	health, err := vm.HealthCheck(ctx)
	require.NoError(err)
	report, ok := health.(map[string]interface{})
	require.True(ok)
	require.Equal(true, report["healthy"])
	require.Equal(1, report["markets"])
	require.Equal(0, report["pendingOrders"])

	require.NoError(vm.Shutdown(ctx))
	require.NoError(vm.Shutdown(ctx))
	_, err = vm.HealthCheck(ctx)
	require.ErrorIs(err, errShutdown)
}

func TestCreateHandlers(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	cfg, account := testConfig("250.5")
	factory := &Factory{Config: cfg}
	instance, err := factory.New(log.NewNoOpLogger())
	require.NoError(err)

	_, err = instance.CreateHandlers(ctx)
	require.ErrorIs(err, errNotInitialized)

	require.NoError(instance.Initialize(ctx, memdb.New()))
	handlers, err := instance.CreateHandlers(ctx)
	require.NoError(err)
	require.Contains(handlers, "")

	server := httptest.NewServer(handlers[""])
	defer server.Close()
	client := api.NewClient(server.URL)

	markets, err := client.GetMarkets(ctx)
	require.NoError(err)
	require.Len(markets, 1)
	require.Equal("ETH-PERP", markets[0].ID)

	balance, err := client.GetBalance(ctx, account)
	require.NoError(err)
	require.Equal("250.5", balance)

	version, err := instance.Version(ctx)
	require.NoError(err)
	require.Equal(Version, version)
}
