// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quote

import (
	"errors"

	"github.com/spf13/pflag"
)

const (
	URIKey    = "uri"
	MarketKey = "market"
	SizeKey   = "size"
	PriceKey  = "price"

	LocalAPIURI = "http://127.0.0.1:9650/ext/perps"
)

var errMissingFlag = errors.New("missing required flag")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(URIKey, LocalAPIURI, "API URI of the perps node")
	flags.String(MarketKey, "ETH-PERP", "Market to quote")
	flags.String(SizeKey, "", "Signed size delta to quote (required)")
	flags.String(PriceKey, "", "Oracle price to quote the fill at (required)")
}

type Config struct {
	URI       string
	Market    string
	SizeDelta string
	Price     string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	uri, err := flags.GetString(URIKey)
	if err != nil {
		return nil, err
	}
	market, err := flags.GetString(MarketKey)
	if err != nil {
		return nil, err
	}
	size, err := flags.GetString(SizeKey)
	if err != nil {
		return nil, err
	}
	if size == "" {
		return nil, errors.Join(errMissingFlag, errors.New(SizeKey))
	}
	price, err := flags.GetString(PriceKey)
	if err != nil {
		return nil, err
	}
	if price == "" {
		return nil, errors.Join(errMissingFlag, errors.New(PriceKey))
	}

	return &Config{
		URI:       uri,
		Market:    market,
		SizeDelta: size,
		Price:     price,
	}, nil
}
