// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"fmt"
	"math/big"

	"github.com/luxfi/ids"

	"github.com/luxfi/perps/vms/perpsvm/funding"
	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// Big integers are persisted as base 10 strings.

type marketRecord struct {
	ID                     string `serialize:"true"`
	FeedID                 ids.ID `serialize:"true"`
	Skew                   string `serialize:"true"`
	Size                   string `serialize:"true"`
	SkewScale              string `serialize:"true"`
	MaxFundingRate         string `serialize:"true"`
	FundingValue           string `serialize:"true"`
	FundingRate            string `serialize:"true"`
	FundingLastUpdated     int64  `serialize:"true"`
	MakerFee               string `serialize:"true"`
	TakerFee               string `serialize:"true"`
	KeeperFee              string `serialize:"true"`
	KeeperFeeMaxRatio      string `serialize:"true"`
	LiquidationReward      string `serialize:"true"`
	MinMarginRatio         string `serialize:"true"`
	MaintenanceMarginRatio string `serialize:"true"`
	MaxMarketSize          string `serialize:"true"`
	MinOrderAge            int64  `serialize:"true"`
	MaxOrderAge            int64  `serialize:"true"`
	PublishTimeMin         int64  `serialize:"true"`
	PublishTimeMax         int64  `serialize:"true"`
	PriceDeviationRatio    string `serialize:"true"`
	CreatedAt              int64  `serialize:"true"`
	UpdatedAt              int64  `serialize:"true"`
}

type orderRecord struct {
	Account         ids.ID `serialize:"true"`
	Market          string `serialize:"true"`
	SizeDelta       string `serialize:"true"`
	AcceptablePrice string `serialize:"true"`
	CommitmentTime  int64  `serialize:"true"`
}

type positionRecord struct {
	Account          ids.ID `serialize:"true"`
	Market           string `serialize:"true"`
	Size             string `serialize:"true"`
	LastPrice        string `serialize:"true"`
	Margin           string `serialize:"true"`
	LastFundingValue string `serialize:"true"`
	UpdatedAt        int64  `serialize:"true"`
}

func encodeInt(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

// intDecoder collects the first parse failure so a record can be decoded
// field by field.
type intDecoder struct {
	err error
}

func (d *intDecoder) decode(name, s string) *big.Int {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		if d.err == nil {
			d.err = fmt.Errorf("%w: field %s=%q", ErrCorrupted, name, s)
		}
		return new(big.Int)
	}
	return x
}

func newMarketRecord(m *perpetuals.Market) *marketRecord {
	return &marketRecord{
		ID:                     m.ID,
		FeedID:                 m.FeedID,
		Skew:                   encodeInt(m.Skew),
		Size:                   encodeInt(m.Size),
		SkewScale:              encodeInt(m.SkewScale),
		MaxFundingRate:         encodeInt(m.MaxFundingRate),
		FundingValue:           encodeInt(m.Funding.Value),
		FundingRate:            encodeInt(m.Funding.Rate),
		FundingLastUpdated:     m.Funding.LastUpdated,
		MakerFee:               encodeInt(m.Fees.MakerFee),
		TakerFee:               encodeInt(m.Fees.TakerFee),
		KeeperFee:              encodeInt(m.Fees.KeeperFee),
		KeeperFeeMaxRatio:      encodeInt(m.Fees.KeeperFeeMaxRatio),
		LiquidationReward:      encodeInt(m.Fees.LiquidationReward),
		MinMarginRatio:         encodeInt(m.Margin.MinMarginRatio),
		MaintenanceMarginRatio: encodeInt(m.Margin.MaintenanceMarginRatio),
		MaxMarketSize:          encodeInt(m.Margin.MaxMarketSize),
		MinOrderAge:            m.Orders.MinOrderAge,
		MaxOrderAge:            m.Orders.MaxOrderAge,
		PublishTimeMin:         m.Orders.PublishTimeMin,
		PublishTimeMax:         m.Orders.PublishTimeMax,
		PriceDeviationRatio:    encodeInt(m.Orders.PriceDeviationRatio),
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func (r *marketRecord) market() (*perpetuals.Market, error) {
	var d intDecoder
	m := &perpetuals.Market{
		ID:             r.ID,
		FeedID:         r.FeedID,
		Skew:           d.decode("skew", r.Skew),
		Size:           d.decode("size", r.Size),
		SkewScale:      d.decode("skewScale", r.SkewScale),
		MaxFundingRate: d.decode("maxFundingRate", r.MaxFundingRate),
		Funding: funding.State{
			Value:       d.decode("fundingValue", r.FundingValue),
			Rate:        d.decode("fundingRate", r.FundingRate),
			LastUpdated: r.FundingLastUpdated,
		},
		Fees: perpetuals.FeeSchedule{
			MakerFee:          d.decode("makerFee", r.MakerFee),
			TakerFee:          d.decode("takerFee", r.TakerFee),
			KeeperFee:         d.decode("keeperFee", r.KeeperFee),
			KeeperFeeMaxRatio: d.decode("keeperFeeMaxRatio", r.KeeperFeeMaxRatio),
			LiquidationReward: d.decode("liquidationReward", r.LiquidationReward),
		},
		Margin: perpetuals.MarginPolicy{
			MinMarginRatio:         d.decode("minMarginRatio", r.MinMarginRatio),
			MaintenanceMarginRatio: d.decode("maintenanceMarginRatio", r.MaintenanceMarginRatio),
			MaxMarketSize:          d.decode("maxMarketSize", r.MaxMarketSize),
		},
		Orders: perpetuals.OrderPolicy{
			MinOrderAge:         r.MinOrderAge,
			MaxOrderAge:         r.MaxOrderAge,
			PublishTimeMin:      r.PublishTimeMin,
			PublishTimeMax:      r.PublishTimeMax,
			PriceDeviationRatio: d.decode("priceDeviationRatio", r.PriceDeviationRatio),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	return m, d.err
}

func newOrderRecord(o *perpetuals.Order) *orderRecord {
	return &orderRecord{
		Account:         o.Account,
		Market:          o.Market,
		SizeDelta:       encodeInt(o.SizeDelta),
		AcceptablePrice: encodeInt(o.AcceptablePrice),
		CommitmentTime:  o.CommitmentTime,
	}
}

func (r *orderRecord) order() (*perpetuals.Order, error) {
	var d intDecoder
	o := &perpetuals.Order{
		Account:         r.Account,
		Market:          r.Market,
		SizeDelta:       d.decode("sizeDelta", r.SizeDelta),
		AcceptablePrice: d.decode("acceptablePrice", r.AcceptablePrice),
		CommitmentTime:  r.CommitmentTime,
	}
	return o, d.err
}

func newPositionRecord(p *perpetuals.Position) *positionRecord {
	return &positionRecord{
		Account:          p.Account,
		Market:           p.Market,
		Size:             encodeInt(p.Size),
		LastPrice:        encodeInt(p.LastPrice),
		Margin:           encodeInt(p.Margin),
		LastFundingValue: encodeInt(p.LastFundingValue),
		UpdatedAt:        p.UpdatedAt,
	}
}

func (r *positionRecord) position() (*perpetuals.Position, error) {
	var d intDecoder
	p := &perpetuals.Position{
		Account:          r.Account,
		Market:           r.Market,
		Size:             d.decode("size", r.Size),
		LastPrice:        d.decode("lastPrice", r.LastPrice),
		Margin:           d.decode("margin", r.Margin),
		LastFundingValue: d.decode("lastFundingValue", r.LastFundingValue),
		UpdatedAt:        r.UpdatedAt,
	}
	return p, d.err
}
