// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/luxfi/perps/vms/perpsvm/config"
)

const (
	ConfigKey          = "config"
	DataDirKey         = "data-dir"
	HTTPPortKey        = "http-port"
	ShutdownTimeoutKey = "shutdown-timeout"

	defaultShutdownTimeout = 10 * time.Second
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "Path to the YAML config file. Defaults are used when empty")
	flags.String(DataDirKey, "", "Directory of the on-disk database. Overrides the config file")
	flags.Uint16(HTTPPortKey, 0, "Port to serve the API on. Overrides the config file")
	flags.Duration(ShutdownTimeoutKey, defaultShutdownTimeout, "Time allowed for in-flight requests on shutdown")
}

type Config struct {
	config.Config
	ShutdownTimeout time.Duration
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	path, err := flags.GetString(ConfigKey)
	if err != nil {
		return nil, err
	}

	var cfg config.Config
	if path == "" {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}

	dataDir, err := flags.GetString(DataDirKey)
	if err != nil {
		return nil, err
	}
	if flags.Changed(DataDirKey) {
		cfg.DataDir = dataDir
	}

	port, err := flags.GetUint16(HTTPPortKey)
	if err != nil {
		return nil, err
	}
	if flags.Changed(HTTPPortKey) {
		cfg.HTTPPort = port
	}

	shutdownTimeout, err := flags.GetDuration(ShutdownTimeoutKey)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Config{
		Config:          cfg,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}
