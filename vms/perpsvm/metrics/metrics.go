// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"

	dto "github.com/prometheus/client_model/go"
)

const (
	Namespace = "perps"

	MarketLabel  = "market"
	OutcomeLabel = "outcome"
	OpLabel      = "op"
	KindLabel    = "kind"
	FeeLabel     = "fee"
	SideLabel    = "side"

	Committed = "committed"
	Settled   = "settled"
	Cancelled = "cancelled"
)

var (
	_ Metrics = (*metricsImpl)(nil)

	errNotRegistry = errors.New("registerer must implement metric.Registry")
)

type Metrics interface {
	metric.APIInterceptor

	// Mark that an order reached outcome in market.
	MarkOrder(market, outcome string)
	// Mark that a position in market was liquidated.
	MarkLiquidated(market string)
	// Mark that op was rejected with an error of the given kind.
	MarkRejected(op, kind string)
	// Add fees collected when settling in market.
	AddFees(market string, orderFee, keeperFee float64)

	SetOpenInterest(market string, long, short float64)
	SetFundingRate(market string, rate float64)
	SetPendingOrders(n int)
}

func New(registerer metric.Registerer) (Metrics, error) {
	registry, ok := registerer.(metric.Registry)
	if !ok {
		return nil, errNotRegistry
	}

	m := &metricsImpl{
		orders: metric.NewCounterVec(
			metric.CounterOpts{
				Name: metric.AppendNamespace(Namespace, "orders_total"),
				Help: "Number of orders by outcome",
			},
			[]string{MarketLabel, OutcomeLabel},
		),
		liquidations: metric.NewCounterVec(
			metric.CounterOpts{
				Name: metric.AppendNamespace(Namespace, "liquidations_total"),
				Help: "Number of liquidated positions",
			},
			[]string{MarketLabel},
		),
		rejections: metric.NewCounterVec(
			metric.CounterOpts{
				Name: metric.AppendNamespace(Namespace, "rejections_total"),
				Help: "Number of rejected operations by error kind",
			},
			[]string{OpLabel, KindLabel},
		),
		fees: metric.NewCounterVec(
			metric.CounterOpts{
				Name: metric.AppendNamespace(Namespace, "fees_total"),
				Help: "Fees collected at settlement, in quote units",
			},
			[]string{MarketLabel, FeeLabel},
		),
		openInterest: metric.NewGaugeVec(
			metric.GaugeOpts{
				Name: metric.AppendNamespace(Namespace, "open_interest"),
				Help: "Open interest per side, in base units",
			},
			[]string{MarketLabel, SideLabel},
		),
		fundingRate: metric.NewGaugeVec(
			metric.GaugeOpts{
				Name: metric.AppendNamespace(Namespace, "funding_rate"),
				Help: "Current daily funding rate",
			},
			[]string{MarketLabel},
		),
		pendingOrders: metric.NewGauge(metric.GaugeOpts{
			Name: metric.AppendNamespace(Namespace, "pending_orders"),
			Help: "Number of committed orders awaiting settlement",
		}),
	}

	interceptor, err := metric.NewAPIInterceptor(registry)
	m.APIInterceptor = interceptor

	err = errors.Join(
		err,
		registerer.Register(metric.AsCollector(m.orders)),
		registerer.Register(metric.AsCollector(m.liquidations)),
		registerer.Register(metric.AsCollector(m.rejections)),
		registerer.Register(metric.AsCollector(m.fees)),
		registerer.Register(metric.AsCollector(m.openInterest)),
		registerer.Register(metric.AsCollector(m.fundingRate)),
		registerer.Register(metric.AsCollector(m.pendingOrders)),
	)
	return m, err
}

type metricsImpl struct {
	orders       metric.CounterVec
	liquidations metric.CounterVec
	rejections   metric.CounterVec
	fees         metric.CounterVec

	openInterest  metric.GaugeVec
	fundingRate   metric.GaugeVec
	pendingOrders metric.Gauge

	metric.APIInterceptor
}

func (m *metricsImpl) MarkOrder(market, outcome string) {
	m.orders.With(metric.Labels{
		MarketLabel:  market,
		OutcomeLabel: outcome,
	}).Inc()
}

func (m *metricsImpl) MarkLiquidated(market string) {
	m.liquidations.With(metric.Labels{
		MarketLabel: market,
	}).Inc()
}

func (m *metricsImpl) MarkRejected(op, kind string) {
	m.rejections.With(metric.Labels{
		OpLabel:   op,
		KindLabel: kind,
	}).Inc()
}

func (m *metricsImpl) AddFees(market string, orderFee, keeperFee float64) {
	m.fees.With(metric.Labels{
		MarketLabel: market,
		FeeLabel:    "order",
	}).Add(orderFee)
	m.fees.With(metric.Labels{
		MarketLabel: market,
		FeeLabel:    "keeper",
	}).Add(keeperFee)
}

func (m *metricsImpl) SetOpenInterest(market string, long, short float64) {
	m.openInterest.With(metric.Labels{
		MarketLabel: market,
		SideLabel:   "long",
	}).Set(long)
	m.openInterest.With(metric.Labels{
		MarketLabel: market,
		SideLabel:   "short",
	}).Set(short)
}

func (m *metricsImpl) SetFundingRate(market string, rate float64) {
	m.fundingRate.With(metric.Labels{
		MarketLabel: market,
	}).Set(rate)
}

func (m *metricsImpl) SetPendingOrders(n int) {
	m.pendingOrders.Set(float64(n))
}

// Gatherer exposes g to prometheus handlers, e.g. next to the process
// collectors of a standalone server.
func Gatherer(g metric.Gatherer) prometheus.Gatherer {
	return prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		families, err := g.Gather()
		return metric.NativeToDTO(families), err
	})
}

// Value returns the value of the series of family name carrying labels, or
// false if it has not been observed.
func Value(g metric.Gatherer, name string, labels metric.Labels) (float64, bool, error) {
	families, err := g.Gather()
	if err != nil {
		return 0, false, err
	}
	for _, family := range families {
		if family.Name != name {
			continue
		}
		for _, m := range family.Metrics {
			if matches(m.Labels, labels) {
				return m.Value.Value, true, nil
			}
		}
	}
	return 0, false, nil
}

func matches(pairs []metric.LabelPair, labels metric.Labels) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if v, ok := labels[pair.Name]; !ok || v != pair.Value {
			return false
		}
	}
	return true
}
