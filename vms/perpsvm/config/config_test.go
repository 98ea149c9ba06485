// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	require.NoError(cfg.Validate())

	keeper, err := cfg.KeeperID()
	require.NoError(err)
	require.Equal(DefaultKeeperID, keeper)

	collector, err := cfg.FeeCollectorID()
	require.NoError(err)
	require.Equal(ids.Empty, collector)
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	account := ids.GenerateTestID()
	owner := ids.GenerateTestID()
	delegate := ids.GenerateTestID()

	path := writeFile(t, `
http_port: 9700
data_dir: /var/lib/perps
twap_window: 2m
keeper:
  enabled: false
genesis:
  markets:
    - id: BTC-PERP
      feed: BTC/USD
      skew_scale: "500"
      max_funding_rate: "0.1"
      maker_fee: "0.0002"
      taker_fee: "0.0006"
      keeper_fee: "2"
      keeper_fee_max_ratio: "0.1"
      liquidation_reward: "10"
      min_margin_ratio: "0.1"
      maintenance_margin_ratio: "0.05"
      min_order_age: 10s
      max_order_age: 1m
      publish_time_max: 5s
      price_deviation_ratio: "0.05"
  accounts:
    - id: `+account.String()+`
      owner: `+owner.String()+`
      delegates: [`+delegate.String()+`]
      balance: "1000.5"
`)

	cfg, err := Load(path)
	require.NoError(err)

	require.Equal(uint16(9700), cfg.HTTPPort)
	require.Equal("/var/lib/perps", cfg.DataDir)
	require.Equal(2*time.Minute, cfg.TWAPWindow)
	require.Equal(oracle.DefaultReferenceMaxAge, cfg.ReferenceMaxAge)
	require.False(cfg.Keeper.Enabled)

	// Unset fields keep their defaults.
	require.Equal("127.0.0.1", cfg.HTTPHost)
	require.Equal(LogLevelInfo, cfg.LogLevel)
	require.Equal(oracle.DefaultReplayCacheSize, cfg.ReplayCacheSize)

	require.Len(cfg.Genesis.Markets, 1)
	m, err := cfg.Genesis.Markets[0].Market()
	require.NoError(err)
	require.Equal("BTC-PERP", m.ID)
	require.Equal(oracle.FeedIDFromName("BTC/USD"), m.FeedID)
	require.Zero(fixedpoint.New(500).Cmp(m.SkewScale))
	require.Zero(m.Margin.MaxMarketSize.Sign())
	require.Zero(m.Skew.Sign())
	require.Equal(perpetuals.OrderPolicy{
		MinOrderAge:         10,
		MaxOrderAge:         60,
		PublishTimeMin:      0,
		PublishTimeMax:      5,
		PriceDeviationRatio: fixedpoint.MustParse("0.05"),
	}, m.Orders)

	require.Len(cfg.Genesis.Accounts, 1)
	a, err := cfg.Genesis.Accounts[0].Account()
	require.NoError(err)
	require.Equal(account, a.ID)
	require.Equal(owner, a.Owner)
	require.Equal([]ids.ID{delegate}, a.Delegates)
	require.Zero(fixedpoint.MustParse("1000.5").Cmp(a.Balance))
}

func TestLoadEnvOverrides(t *testing.T) {
	require := require.New(t)

	path := writeFile(t, "http_port: 9700\n")
	t.Setenv(EnvHTTPHost, "0.0.0.0")
	t.Setenv(EnvHTTPPort, "9800")
	t.Setenv(EnvDataDir, "/tmp/perps")
	t.Setenv(EnvLogLevel, LogLevelDebug)
	t.Setenv(EnvKeeperEnabled, "false")
	t.Setenv(EnvKeeperInterval, "30s")

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal("0.0.0.0", cfg.HTTPHost)
	require.Equal(uint16(9800), cfg.HTTPPort)
	require.Equal("/tmp/perps", cfg.DataDir)
	require.Equal(LogLevelDebug, cfg.LogLevel)
	require.False(cfg.Keeper.Enabled)
	require.Equal(30*time.Second, cfg.Keeper.Interval)
}

func TestFromEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv(EnvHTTPPort, "9900")
	cfg, err := FromEnv()
	require.NoError(err)
	require.Equal(uint16(9900), cfg.HTTPPort)
	require.Equal(DefaultConfig().Genesis, cfg.Genesis)

	t.Setenv(EnvLogLevel, "trace")
	_, err = FromEnv()
	require.ErrorIs(err, ErrInvalidConfig)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "bad port override",
			content: "http_port: 9700\n",
			env:     map[string]string{EnvHTTPPort: "70000"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad keeper flag override",
			content: "http_port: 9700\n",
			env:     map[string]string{EnvKeeperEnabled: "maybe"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown log level",
			content: "log_level: verbose\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative reference age",
			content: "reference_max_age: -1m\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero port",
			content: "http_port: 0\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad keeper id",
			content: "keeper:\n  id: not-an-id\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name: "bad market decimal",
			content: `
genesis:
  markets:
    - id: ETH-PERP
      feed: ETH/USD
      skew_scale: lots
`,
			wantErr: ErrInvalidConfig,
		},
		{
			name: "zero skew scale",
			content: `
genesis:
  markets:
    - id: ETH-PERP
      feed: ETH/USD
`,
			wantErr: perpetuals.ErrInvalidMarket,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			for k, v := range test.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, test.content))
			require.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateDuplicates(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	cfg.Genesis.Markets = append(cfg.Genesis.Markets, DefaultMarket("ETH-PERP", "ETH/USD"))
	require.ErrorIs(cfg.Validate(), ErrInvalidConfig)

	account := AccountConfig{
		ID:    ids.GenerateTestID().String(),
		Owner: ids.GenerateTestID().String(),
	}
	cfg = DefaultConfig()
	cfg.Genesis.Accounts = []AccountConfig{account, account}
	require.ErrorIs(cfg.Validate(), ErrInvalidConfig)
}

func TestAccountNegativeBalance(t *testing.T) {
	_, err := AccountConfig{
		ID:      ids.GenerateTestID().String(),
		Owner:   ids.GenerateTestID().String(),
		Balance: "-1",
	}.Account()
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWriteThenLoad(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "perps.yaml")
	want := DefaultConfig()
	want.DataDir = "/data"
	want.Keeper.Interval = 7 * time.Second
	require.NoError(Write(path, want))

	got, err := Load(path)
	require.NoError(err)
	require.Equal(want, got)
}
