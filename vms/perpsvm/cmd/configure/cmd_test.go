// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package configure

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/config"
)

func TestInit(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "perps.yaml")
	require.NoError(Init(path, false))

	cfg, err := config.Load(path)
	require.NoError(err)
	require.Equal(config.DefaultConfig(), cfg)

	require.ErrorIs(Init(path, false), errFileExists)

	require.NoError(os.WriteFile(path, []byte("http_port: 1\n"), 0o600))
	require.NoError(Init(path, true))
	cfg, err = config.Load(path)
	require.NoError(err)
	require.Equal(config.DefaultConfig().HTTPPort, cfg.HTTPPort)
}

func TestInitCommand(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "node.yaml")
	var out bytes.Buffer
	c := Command()
	c.SetOut(&out)
	c.SetArgs([]string{"init", "--" + OutputKey, path})
	require.NoError(c.Execute())
	require.Contains(out.String(), path)
	require.FileExists(path)
}
