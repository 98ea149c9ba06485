// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quote

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm"
	"github.com/luxfi/perps/vms/perpsvm/api"
	"github.com/luxfi/perps/vms/perpsvm/config"
)

func newClient(t *testing.T) (*perpsvm.VM, *api.Client) {
	require := require.New(t)

	cfg := config.DefaultConfig()
	cfg.Keeper.Enabled = false
	vm := perpsvm.New(cfg, nil, nil)
	require.NoError(vm.Initialize(context.Background(), memdb.New()))

	handlers, err := vm.CreateHandlers(context.Background())
	require.NoError(err)
	server := httptest.NewServer(handlers[""])
	t.Cleanup(server.Close)
	return vm, api.NewClient(server.URL)
}

func TestParseFlags(t *testing.T) {
	require := require.New(t)

	flags := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	AddFlags(flags)
	_, err := ParseFlags(flags, []string{"--" + SizeKey, "1"})
	require.ErrorIs(err, errMissingFlag)

	flags = pflag.NewFlagSet("quote", pflag.ContinueOnError)
	AddFlags(flags)
	cfg, err := ParseFlags(flags, []string{"--" + SizeKey, "-2", "--" + PriceKey, "1500"})
	require.NoError(err)
	require.Equal(&Config{
		URI:       LocalAPIURI,
		Market:    "ETH-PERP",
		SizeDelta: "-2",
		Price:     "1500",
	}, cfg)
}

func TestQuote(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	vm, client := newClient(t)

	cfg := &Config{
		Market:    "ETH-PERP",
		SizeDelta: "10",
		Price:     "2000",
	}

	var out bytes.Buffer
	require.NoError(Quote(ctx, client, cfg, &out))
	require.Contains(out.String(), "fill price: 2000.01")
	require.Contains(out.String(), "fee:        unavailable")

	_, err := client.PushPrice(ctx, "ETH/USD", "2000", uint64(vm.Clock().Unix()))
	require.NoError(err)

	out.Reset()
	require.NoError(Quote(ctx, client, cfg, &out))
	require.Contains(out.String(), "fee:        12.00006")

	cfg.Market = "BTC-PERP"
	require.Error(Quote(ctx, client, cfg, &out))
}
