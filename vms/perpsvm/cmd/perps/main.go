// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/perps/vms/perpsvm"
	"github.com/luxfi/perps/vms/perpsvm/cmd/configure"
	"github.com/luxfi/perps/vms/perpsvm/cmd/quote"
	"github.com/luxfi/perps/vms/perpsvm/cmd/run"
)

func main() {
	cmd := &cobra.Command{
		Use:     "perps",
		Short:   "Runs and queries a perpetual futures settlement node",
		Version: perpsvm.Version,
	}
	cmd.AddCommand(
		run.Command(),
		configure.Command(),
		quote.Command(),
	)
	ctx := context.Background()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
