// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the perps VM.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"github.com/luxfi/ids"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/funding"
	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// Environment variables that override file values.
const (
	EnvHTTPHost       = "PERPS_HTTP_HOST"
	EnvHTTPPort       = "PERPS_HTTP_PORT"
	EnvDataDir        = "PERPS_DATA_DIR"
	EnvLogLevel       = "PERPS_LOG_LEVEL"
	EnvKeeperEnabled  = "PERPS_KEEPER_ENABLED"
	EnvKeeperInterval = "PERPS_KEEPER_INTERVAL"
)

// Log levels accepted by LogLevel. "off" discards all output.
const (
	LogLevelOff   = "off"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
)

var (
	ErrInvalidConfig = errors.New("invalid config")

	// DefaultKeeperID is the account keeper fees and liquidation rewards
	// are paid to when KeeperID is unset.
	DefaultKeeperID = ids.ID(sha256.Sum256([]byte("perps:keeper")))
)

// Config contains configuration parameters for the perps VM.
type Config struct {
	HTTPHost       string   `json:"httpHost" yaml:"http_host"`
	HTTPPort       uint16   `json:"httpPort" yaml:"http_port"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowed_origins"`

	// DataDir holds the badger database. Empty keeps state in memory.
	DataDir  string `json:"dataDir" yaml:"data_dir"`
	LogLevel string `json:"logLevel" yaml:"log_level"`

	// TWAPWindow is the averaging window of the reference price.
	TWAPWindow time.Duration `json:"twapWindow" yaml:"twap_window"`
	// ReferenceMaxAge rejects trading on a reference price whose newest
	// observation is older than this. Zero disables the bound.
	ReferenceMaxAge time.Duration `json:"referenceMaxAge" yaml:"reference_max_age"`
	// ReplayCacheSize is the number of applied price payloads remembered.
	ReplayCacheSize int `json:"replayCacheSize" yaml:"replay_cache_size"`
	MarketCacheSize int `json:"marketCacheSize" yaml:"market_cache_size"`

	Keeper KeeperConfig `json:"keeper" yaml:"keeper"`

	// FeeCollector receives order fees. Empty uses the ledger's collector.
	FeeCollector string `json:"feeCollector" yaml:"fee_collector"`

	Genesis Genesis `json:"genesis" yaml:"genesis"`
}

// KeeperConfig controls the background sweep.
type KeeperConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	// ID is the account the keeper acts as. Empty uses DefaultKeeperID.
	ID string `json:"id" yaml:"id"`
}

// Genesis is the state written the first time the VM starts on an empty
// database.
type Genesis struct {
	Markets  []MarketConfig  `json:"markets" yaml:"markets"`
	Accounts []AccountConfig `json:"accounts" yaml:"accounts,omitempty"`
}

// MarketConfig describes a market with decimal strings. Ages are whole
// seconds.
type MarketConfig struct {
	ID string `json:"id" yaml:"id"`
	// Feed is the oracle feed name, e.g. "ETH/USD".
	Feed           string `json:"feed" yaml:"feed"`
	SkewScale      string `json:"skewScale" yaml:"skew_scale"`
	MaxFundingRate string `json:"maxFundingRate" yaml:"max_funding_rate"`

	MakerFee          string `json:"makerFee" yaml:"maker_fee"`
	TakerFee          string `json:"takerFee" yaml:"taker_fee"`
	KeeperFee         string `json:"keeperFee" yaml:"keeper_fee"`
	KeeperFeeMaxRatio string `json:"keeperFeeMaxRatio" yaml:"keeper_fee_max_ratio"`
	LiquidationReward string `json:"liquidationReward" yaml:"liquidation_reward"`

	MinMarginRatio         string `json:"minMarginRatio" yaml:"min_margin_ratio"`
	MaintenanceMarginRatio string `json:"maintenanceMarginRatio" yaml:"maintenance_margin_ratio"`
	MaxMarketSize          string `json:"maxMarketSize" yaml:"max_market_size"`

	MinOrderAge         time.Duration `json:"minOrderAge" yaml:"min_order_age"`
	MaxOrderAge         time.Duration `json:"maxOrderAge" yaml:"max_order_age"`
	PublishTimeMin      time.Duration `json:"publishTimeMin" yaml:"publish_time_min"`
	PublishTimeMax      time.Duration `json:"publishTimeMax" yaml:"publish_time_max"`
	PriceDeviationRatio string        `json:"priceDeviationRatio" yaml:"price_deviation_ratio"`
}

// AccountConfig describes a genesis account. Balance is a decimal string.
type AccountConfig struct {
	ID        string   `json:"id" yaml:"id"`
	Owner     string   `json:"owner" yaml:"owner"`
	Delegates []string `json:"delegates" yaml:"delegates,omitempty"`
	Balance   string   `json:"balance" yaml:"balance"`
}

// Account is a parsed AccountConfig.
type Account struct {
	ID        ids.ID
	Owner     ids.ID
	Delegates []ids.ID
	Balance   *big.Int
}

// DefaultConfig returns the default configuration for the perps VM.
func DefaultConfig() Config {
	return Config{
		HTTPHost:        "127.0.0.1",
		HTTPPort:        9650,
		AllowedOrigins:  []string{"*"},
		LogLevel:        LogLevelInfo,
		TWAPWindow:      oracle.DefaultTWAPWindow,
		ReferenceMaxAge: oracle.DefaultReferenceMaxAge,
		ReplayCacheSize: oracle.DefaultReplayCacheSize,
		MarketCacheSize: 64,
		Keeper: KeeperConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
		},
		Genesis: Genesis{
			Markets: []MarketConfig{DefaultMarket("ETH-PERP", "ETH/USD")},
		},
	}
}

// DefaultMarket returns market parameters suitable for a liquid major.
func DefaultMarket(id, feed string) MarketConfig {
	return MarketConfig{
		ID:                     id,
		Feed:                   feed,
		SkewScale:              "1000000",
		MaxFundingRate:         "0.1",
		MakerFee:               "0.0002",
		TakerFee:               "0.0006",
		KeeperFee:              "2",
		KeeperFeeMaxRatio:      "0.1",
		LiquidationReward:      "20",
		MinMarginRatio:         "0.05",
		MaintenanceMarginRatio: "0.025",
		MaxMarketSize:          "0",
		MinOrderAge:            8 * time.Second,
		MaxOrderAge:            60 * time.Second,
		PublishTimeMin:         -2 * time.Second,
		PublishTimeMax:         2 * time.Second,
		PriceDeviationRatio:    "0.05",
	}
}

// Load reads a YAML config from path. Fields absent from the file keep
// their defaults and environment variables override both.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromEnv returns the defaults with environment variables applied.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Write atomically writes cfg to path as YAML.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// applyEnvOverrides overrides fields whose environment variable is set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvHTTPHost); v != "" {
		cfg.HTTPHost = v
	}
	if v := os.Getenv(EnvHTTPPort); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvHTTPPort, err)
		}
		cfg.HTTPPort = uint16(port)
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvKeeperEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvKeeperEnabled, err)
		}
		cfg.Keeper.Enabled = enabled
	}
	if v := os.Getenv(EnvKeeperInterval); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvKeeperInterval, err)
		}
		cfg.Keeper.Interval = interval
	}
	return nil
}

// Validate checks the config and every genesis entry.
func (c Config) Validate() error {
	switch {
	case c.HTTPPort == 0:
		return fmt.Errorf("%w: http port must be set", ErrInvalidConfig)
	case c.TWAPWindow <= 0:
		return fmt.Errorf("%w: twap window must be positive", ErrInvalidConfig)
	case c.ReferenceMaxAge < 0:
		return fmt.Errorf("%w: reference max age must not be negative", ErrInvalidConfig)
	case c.Keeper.Enabled && c.Keeper.Interval <= 0:
		return fmt.Errorf("%w: keeper interval must be positive", ErrInvalidConfig)
	}
	switch c.LogLevel {
	case LogLevelOff, LogLevelInfo, LogLevelDebug:
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if _, err := c.KeeperID(); err != nil {
		return err
	}
	if _, err := c.FeeCollectorID(); err != nil {
		return err
	}

	markets := make(map[string]struct{}, len(c.Genesis.Markets))
	for _, mc := range c.Genesis.Markets {
		m, err := mc.Market()
		if err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if _, ok := markets[m.ID]; ok {
			return fmt.Errorf("%w: duplicate market %s", ErrInvalidConfig, m.ID)
		}
		markets[m.ID] = struct{}{}
	}

	accounts := make(map[ids.ID]struct{}, len(c.Genesis.Accounts))
	for _, ac := range c.Genesis.Accounts {
		a, err := ac.Account()
		if err != nil {
			return err
		}
		if _, ok := accounts[a.ID]; ok {
			return fmt.Errorf("%w: duplicate account %s", ErrInvalidConfig, a.ID)
		}
		accounts[a.ID] = struct{}{}
	}
	return nil
}

// KeeperID returns the keeper account.
func (c Config) KeeperID() (ids.ID, error) {
	if c.Keeper.ID == "" {
		return DefaultKeeperID, nil
	}
	return parseID("keeper id", c.Keeper.ID)
}

// FeeCollectorID returns the configured fee collector, or ids.Empty when
// the ledger default should be used.
func (c Config) FeeCollectorID() (ids.ID, error) {
	if c.FeeCollector == "" {
		return ids.Empty, nil
	}
	return parseID("fee collector", c.FeeCollector)
}

// Market converts mc into a market with zeroed aggregates.
func (mc MarketConfig) Market() (*perpetuals.Market, error) {
	if mc.Feed == "" {
		return nil, fmt.Errorf("%w: market %s has no feed", ErrInvalidConfig, mc.ID)
	}

	p := &parser{market: mc.ID}
	m := &perpetuals.Market{
		ID:             mc.ID,
		FeedID:         oracle.FeedIDFromName(mc.Feed),
		Skew:           fixedpoint.Zero(),
		Size:           fixedpoint.Zero(),
		SkewScale:      p.parse("skew_scale", mc.SkewScale),
		MaxFundingRate: p.parse("max_funding_rate", mc.MaxFundingRate),
		Funding:        funding.NewState(),
		Fees: perpetuals.FeeSchedule{
			MakerFee:          p.parse("maker_fee", mc.MakerFee),
			TakerFee:          p.parse("taker_fee", mc.TakerFee),
			KeeperFee:         p.parse("keeper_fee", mc.KeeperFee),
			KeeperFeeMaxRatio: p.parse("keeper_fee_max_ratio", mc.KeeperFeeMaxRatio),
			LiquidationReward: p.parse("liquidation_reward", mc.LiquidationReward),
		},
		Margin: perpetuals.MarginPolicy{
			MinMarginRatio:         p.parse("min_margin_ratio", mc.MinMarginRatio),
			MaintenanceMarginRatio: p.parse("maintenance_margin_ratio", mc.MaintenanceMarginRatio),
			MaxMarketSize:          p.parse("max_market_size", mc.MaxMarketSize),
		},
		Orders: perpetuals.OrderPolicy{
			MinOrderAge:         seconds(mc.MinOrderAge),
			MaxOrderAge:         seconds(mc.MaxOrderAge),
			PublishTimeMin:      seconds(mc.PublishTimeMin),
			PublishTimeMax:      seconds(mc.PublishTimeMax),
			PriceDeviationRatio: p.parse("price_deviation_ratio", mc.PriceDeviationRatio),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	return m, nil
}

// Account parses ac.
func (ac AccountConfig) Account() (Account, error) {
	id, err := parseID("account id", ac.ID)
	if err != nil {
		return Account{}, err
	}
	owner, err := parseID("account owner", ac.Owner)
	if err != nil {
		return Account{}, err
	}
	delegates := make([]ids.ID, 0, len(ac.Delegates))
	for _, d := range ac.Delegates {
		delegate, err := parseID("account delegate", d)
		if err != nil {
			return Account{}, err
		}
		delegates = append(delegates, delegate)
	}

	balance := fixedpoint.Zero()
	if ac.Balance != "" {
		balance, err = fixedpoint.Parse(ac.Balance)
		if err != nil {
			return Account{}, fmt.Errorf("%w: account %s balance: %w", ErrInvalidConfig, ac.ID, err)
		}
		if balance.Sign() < 0 {
			return Account{}, fmt.Errorf("%w: account %s balance is negative", ErrInvalidConfig, ac.ID)
		}
	}
	return Account{
		ID:        id,
		Owner:     owner,
		Delegates: delegates,
		Balance:   balance,
	}, nil
}

func parseID(field, s string) (ids.ID, error) {
	id, err := ids.FromString(s)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: %s %q: %w", ErrInvalidConfig, field, s, err)
	}
	return id, nil
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// parser keeps the first decimal parse error of a market. Empty fields are
// zero.
type parser struct {
	market string
	err    error
}

func (p *parser) parse(field, s string) *big.Int {
	if p.err != nil {
		return nil
	}
	if s == "" {
		return fixedpoint.Zero()
	}
	x, err := fixedpoint.Parse(s)
	if err != nil {
		p.err = fmt.Errorf("%w: market %s %s %q: %w", ErrInvalidConfig, p.market, field, s, err)
		return nil
	}
	return x
}
