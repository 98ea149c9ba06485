// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quote

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luxfi/perps/vms/perpsvm/api"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "quote",
		Short: "Quotes the fill price and fee of a trade",
		RunE:  quoteFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func quoteFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}
	return Quote(c.Context(), api.NewClient(config.URI), config, c.OutOrStdout())
}

// Quote prints the market's skew with the fill price and fee of the
// configured trade. The fee is omitted when the node has no fresh price.
func Quote(ctx context.Context, client *api.Client, config *Config, w io.Writer) error {
	market, err := client.GetMarket(ctx, config.Market)
	if err != nil {
		return err
	}
	fillPrice, err := client.FillPrice(ctx, config.Market, config.SizeDelta, config.Price)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "market:     %s\n", market.ID)
	fmt.Fprintf(w, "skew:       %s\n", market.Skew)
	fmt.Fprintf(w, "size delta: %s\n", config.SizeDelta)
	fmt.Fprintf(w, "fill price: %s\n", fillPrice)

	fee, err := client.OrderFee(ctx, config.Market, config.SizeDelta)
	if err != nil {
		fmt.Fprintf(w, "fee:        unavailable (%s)\n", err)
		return nil
	}
	fmt.Fprintf(w, "fee:        %s\n", fee)
	return nil
}
