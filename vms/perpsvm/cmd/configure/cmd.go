// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package configure

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/luxfi/perps/vms/perpsvm/config"
)

const (
	OutputKey = "output"
	ForceKey  = "force"
)

var errFileExists = errors.New("config file already exists")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manages perps config files",
	}
	c.AddCommand(initCommand())
	return c
}

func initCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "init",
		Short: "Writes the default config",
		RunE:  initFunc,
	}
	flags := c.Flags()
	flags.String(OutputKey, "perps.yaml", "Path to write the config to")
	flags.Bool(ForceKey, false, "Overwrite an existing file")
	return c
}

func initFunc(c *cobra.Command, args []string) error {
	path, force, err := parseInitFlags(c.Flags(), args)
	if err != nil {
		return err
	}
	if err := Init(path, force); err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", path)
	return nil
}

func parseInitFlags(flags *pflag.FlagSet, args []string) (string, bool, error) {
	if err := flags.Parse(args); err != nil {
		return "", false, err
	}
	path, err := flags.GetString(OutputKey)
	if err != nil {
		return "", false, err
	}
	force, err := flags.GetBool(ForceKey)
	return path, force, err
}

// Init writes the default config to path. An existing file is only
// replaced when force is set.
func Init(path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%w: %s", errFileExists, path)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return config.Write(path, config.DefaultConfig())
}
