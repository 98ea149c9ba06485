// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	perps "github.com/luxfi/perps"
	"github.com/luxfi/perps/vms/perpsvm"
	"github.com/luxfi/perps/vms/perpsvm/api"
	"github.com/luxfi/perps/vms/perpsvm/config"
	"github.com/luxfi/perps/vms/perpsvm/metrics"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	AddFlags(flags)
	return flags
}

func TestParseFlags(t *testing.T) {
	require := require.New(t)

	path := t.TempDir() + "/perps.yaml"
	cfg := config.DefaultConfig()
	cfg.HTTPPort = 9700
	require.NoError(config.Write(path, cfg))

	parsed, err := ParseFlags(newFlags(), []string{
		"--" + ConfigKey, path,
		"--" + DataDirKey, "/var/lib/perps",
		"--" + ShutdownTimeoutKey, "3s",
	})
	require.NoError(err)
	require.Equal(uint16(9700), parsed.HTTPPort)
	require.Equal("/var/lib/perps", parsed.DataDir)
	require.Equal(3*time.Second, parsed.ShutdownTimeout)

	parsed, err = ParseFlags(newFlags(), []string{"--" + HTTPPortKey, "9800"})
	require.NoError(err)
	require.Equal(uint16(9800), parsed.HTTPPort)
	require.Equal(defaultShutdownTimeout, parsed.ShutdownTimeout)
}

func TestParseFlagsInvalidConfig(t *testing.T) {
	_, err := ParseFlags(newFlags(), []string{"--" + HTTPPortKey, "0"})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func getHealth(t *testing.T, url string) (int, healthReply) {
	require := require.New(t)

	resp, err := http.Get(url + healthPath)
	require.NoError(err)
	defer resp.Body.Close()

	var reply healthReply
	require.NoError(json.NewDecoder(resp.Body).Decode(&reply))
	return resp.StatusCode, reply
}

func TestHandler(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Keeper.Enabled = false

	process := prometheus.NewRegistry()
	require.NoError(process.Register(collectors.NewGoCollector()))
	registry := metric.NewRegistry()
	vm := perpsvm.New(cfg, log.NewNoOpLogger(), registry)
	require.NoError(vm.Initialize(ctx, memdb.New()))

	gatherer := prometheus.Gatherers{process, metrics.Gatherer(registry)}
	handler, err := NewHandler(ctx, vm, gatherer, cfg.AllowedOrigins)
	require.NoError(err)
	server := httptest.NewServer(handler)
	defer server.Close()

	status, reply := getHealth(t, server.URL)
	require.Equal(http.StatusServiceUnavailable, status)
	require.False(reply.Healthy)

	require.NoError(vm.SetState(ctx, perps.NormalOp))
	status, reply = getHealth(t, server.URL)
	require.Equal(http.StatusOK, status)
	require.True(reply.Healthy)

	client := api.NewClient(server.URL + perpsPath)
	ok, err := client.Ping(ctx)
	require.NoError(err)
	require.True(ok)

	resp, err := http.Get(server.URL + metricsPath)
	require.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(body), "go_goroutines")
	require.Contains(string(body), "perps_pending_orders")

	require.NoError(vm.Shutdown(ctx))
	status, reply = getHealth(t, server.URL)
	require.Equal(http.StatusServiceUnavailable, status)
	require.NotEmpty(reply.Error)
}

func TestOpenDatabase(t *testing.T) {
	require := require.New(t)

	db, err := openDatabase("")
	require.NoError(err)
	require.NoError(db.Put([]byte("k"), []byte("v")))
	require.NoError(db.Close())

	dir := t.TempDir() + "/db"
	db, err = openDatabase(dir)
	require.NoError(err)
	require.NoError(db.Put([]byte("k"), []byte("v")))
	require.NoError(db.Close())

	db, err = openDatabase(dir)
	require.NoError(err)
	value, err := db.Get([]byte("k"))
	require.NoError(err)
	require.Equal([]byte("v"), value)
	require.NoError(db.Close())
}
