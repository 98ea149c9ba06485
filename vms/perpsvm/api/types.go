// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/ids"
	"github.com/luxfi/utils/json"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/orders"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// Amounts and prices travel as decimal strings such as "1050.25".

type OrderReply struct {
	Account         ids.ID      `json:"account"`
	Market          string      `json:"market"`
	SizeDelta       string      `json:"sizeDelta"`
	AcceptablePrice string      `json:"acceptablePrice"`
	CommitmentTime  json.Uint64 `json:"commitmentTime"`
}

type PositionReply struct {
	Account          ids.ID      `json:"account"`
	Market           string      `json:"market"`
	Side             string      `json:"side"`
	Size             string      `json:"size"`
	LastPrice        string      `json:"lastPrice"`
	Margin           string      `json:"margin"`
	LastFundingValue string      `json:"lastFundingValue"`
	UpdatedAt        json.Uint64 `json:"updatedAt"`
}

type FundingReply struct {
	Rate        string      `json:"rate"`
	Value       string      `json:"value"`
	LastUpdated json.Uint64 `json:"lastUpdated"`
}

type MarketReply struct {
	ID                string       `json:"id"`
	FeedID            ids.ID       `json:"feedID"`
	Skew              string       `json:"skew"`
	Size              string       `json:"size"`
	LongOpenInterest  string       `json:"longOpenInterest"`
	ShortOpenInterest string       `json:"shortOpenInterest"`
	SkewScale         string       `json:"skewScale"`
	MaxFundingRate    string       `json:"maxFundingRate"`
	Funding           FundingReply `json:"funding"`

	MakerFee          string `json:"makerFee"`
	TakerFee          string `json:"takerFee"`
	KeeperFee         string `json:"keeperFee"`
	KeeperFeeMaxRatio string `json:"keeperFeeMaxRatio"`
	LiquidationReward string `json:"liquidationReward"`

	MinMarginRatio         string `json:"minMarginRatio"`
	MaintenanceMarginRatio string `json:"maintenanceMarginRatio"`
	MaxMarketSize          string `json:"maxMarketSize"`

	MinOrderAge         json.Uint64 `json:"minOrderAge"`
	MaxOrderAge         json.Uint64 `json:"maxOrderAge"`
	PublishTimeMin      int64       `json:"publishTimeMin"`
	PublishTimeMax      int64       `json:"publishTimeMax"`
	PriceDeviationRatio string      `json:"priceDeviationRatio"`
}

func formatOrder(o *perpetuals.Order) OrderReply {
	return OrderReply{
		Account:         o.Account,
		Market:          o.Market,
		SizeDelta:       fixedpoint.Format(o.SizeDelta),
		AcceptablePrice: fixedpoint.Format(o.AcceptablePrice),
		CommitmentTime:  json.Uint64(o.CommitmentTime),
	}
}

func formatPosition(p *perpetuals.Position) PositionReply {
	return PositionReply{
		Account:          p.Account,
		Market:           p.Market,
		Side:             p.Side().String(),
		Size:             fixedpoint.Format(p.Size),
		LastPrice:        fixedpoint.Format(p.LastPrice),
		Margin:           fixedpoint.Format(p.Margin),
		LastFundingValue: fixedpoint.Format(p.LastFundingValue),
		UpdatedAt:        json.Uint64(p.UpdatedAt),
	}
}

func formatMarket(m *perpetuals.Market) MarketReply {
	return MarketReply{
		ID:                m.ID,
		FeedID:            m.FeedID,
		Skew:              fixedpoint.Format(m.Skew),
		Size:              fixedpoint.Format(m.Size),
		LongOpenInterest:  fixedpoint.Format(m.LongOpenInterest()),
		ShortOpenInterest: fixedpoint.Format(m.ShortOpenInterest()),
		SkewScale:         fixedpoint.Format(m.SkewScale),
		MaxFundingRate:    fixedpoint.Format(m.MaxFundingRate),
		Funding: FundingReply{
			Rate:        fixedpoint.Format(m.Funding.Rate),
			Value:       fixedpoint.Format(m.Funding.Value),
			LastUpdated: json.Uint64(m.Funding.LastUpdated),
		},
		MakerFee:               fixedpoint.Format(m.Fees.MakerFee),
		TakerFee:               fixedpoint.Format(m.Fees.TakerFee),
		KeeperFee:              fixedpoint.Format(m.Fees.KeeperFee),
		KeeperFeeMaxRatio:      fixedpoint.Format(m.Fees.KeeperFeeMaxRatio),
		LiquidationReward:      fixedpoint.Format(m.Fees.LiquidationReward),
		MinMarginRatio:         fixedpoint.Format(m.Margin.MinMarginRatio),
		MaintenanceMarginRatio: fixedpoint.Format(m.Margin.MaintenanceMarginRatio),
		MaxMarketSize:          fixedpoint.Format(m.Margin.MaxMarketSize),
		MinOrderAge:            json.Uint64(m.Orders.MinOrderAge),
		MaxOrderAge:            json.Uint64(m.Orders.MaxOrderAge),
		PublishTimeMin:         m.Orders.PublishTimeMin,
		PublishTimeMax:         m.Orders.PublishTimeMax,
		PriceDeviationRatio:    fixedpoint.Format(m.Orders.PriceDeviationRatio),
	}
}

func formatView(v *orders.PositionView) GetPositionReply {
	return GetPositionReply{
		Position:         formatPosition(v.Position),
		Price:            fixedpoint.Format(v.Price),
		PnL:              fixedpoint.Format(v.PnL),
		AccruedFunding:   fixedpoint.Format(v.AccruedFunding),
		RemainingMargin:  fixedpoint.Format(v.RemainingMargin),
		LiquidationPrice: fixedpoint.Format(v.LiquidationPrice),
		CanLiquidate:     v.CanLiquidate,
	}
}

// parseAmount reads a required decimal argument.
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing %s", errInvalidArgument, field)
	}
	x, err := fixedpoint.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errInvalidArgument, field, err)
	}
	return x, nil
}

// parseOptionalAmount reads a decimal argument that defaults to zero.
func parseOptionalAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return fixedpoint.Zero(), nil
	}
	return parseAmount(field, s)
}

// decodeHex reads 0x prefixed hex.
func decodeHex(field, s string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errInvalidArgument, field, err)
	}
	return data, nil
}

// EncodeHex renders data as 0x prefixed hex.
func EncodeHex(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}
