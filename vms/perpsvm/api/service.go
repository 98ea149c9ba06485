// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api provides the JSON-RPC API of the perps VM.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/utils/json"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
	"github.com/luxfi/perps/vms/perpsvm/ledger"
	"github.com/luxfi/perps/vms/perpsvm/oracle"
	"github.com/luxfi/perps/vms/perpsvm/orders"
)

// Name is the service name methods are registered under. Method names are
// called with a lowercase first letter, e.g. "perps.commitOrder".
const Name = "perps"

var (
	errInvalidArgument = errors.New("invalid argument")
	errMissingService  = errors.New("missing api dependency")
)

type Config struct {
	Log        log.Logger
	Controller *orders.Controller
	Ledger     *ledger.Ledger
	// Prices receives pushed price updates.
	Prices oracle.Updater
}

// Service provides the RPC API for the perps VM.
type Service struct {
	log        log.Logger
	controller *orders.Controller
	ledger     *ledger.Ledger
	prices     oracle.Updater
}

// NewService creates a new API service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Controller == nil || cfg.Ledger == nil || cfg.Prices == nil {
		return nil, errMissingService
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	return &Service{
		log:        cfg.Log,
		controller: cfg.Controller,
		ledger:     cfg.Ledger,
		prices:     cfg.Prices,
	}, nil
}

// NewHandler returns a JSON-RPC 2.0 handler serving s. Requests are timed
// by interceptor when it is not nil.
func NewHandler(s *Service, interceptor metric.APIInterceptor) (http.Handler, error) {
	server := rpc.NewServer()
	codec := json.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	if interceptor != nil {
		server.RegisterInterceptFunc(interceptor.InterceptRequest)
		server.RegisterAfterFunc(interceptor.AfterRequest)
	}
	if err := server.RegisterService(s, Name); err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", Name, err)
	}
	return server, nil
}

// ============================================
// Orders
// ============================================

type CommitOrderArgs struct {
	Caller    ids.ID `json:"caller"`
	Account   ids.ID `json:"account"`
	Market    string `json:"market"`
	SizeDelta string `json:"sizeDelta"`
	// AcceptablePrice bounds the fill price. Empty or "0" is unbounded.
	AcceptablePrice string `json:"acceptablePrice"`
}

type CommitOrderReply struct {
	Order       OrderReply `json:"order"`
	OraclePrice string     `json:"oraclePrice"`
	FillPrice   string     `json:"fillPrice"`
	OrderFee    string     `json:"orderFee"`
	KeeperFee   string     `json:"keeperFee"`
}

// CommitOrder records a trade intent to be settled later.
func (s *Service) CommitOrder(r *http.Request, args *CommitOrderArgs, reply *CommitOrderReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "commitOrder"),
		log.Stringer("account", args.Account),
		log.String("market", args.Market),
	)

	sizeDelta, err := parseAmount("sizeDelta", args.SizeDelta)
	if err != nil {
		return err
	}
	acceptable, err := parseOptionalAmount("acceptablePrice", args.AcceptablePrice)
	if err != nil {
		return err
	}

	event, err := s.controller.CommitOrder(r.Context(), args.Caller, args.Account, args.Market, sizeDelta, acceptable)
	if err != nil {
		return err
	}
	reply.Order = OrderReply{
		Account:         event.Account,
		Market:          event.Market,
		SizeDelta:       fixedpoint.Format(event.SizeDelta),
		AcceptablePrice: fixedpoint.Format(event.AcceptablePrice),
		CommitmentTime:  json.Uint64(event.CommitmentTime),
	}
	reply.OraclePrice = fixedpoint.Format(event.OraclePrice)
	reply.FillPrice = fixedpoint.Format(event.FillPrice)
	reply.OrderFee = fixedpoint.Format(event.OrderFee)
	reply.KeeperFee = fixedpoint.Format(event.KeeperFee)
	return nil
}

type SettleOrderArgs struct {
	Settler ids.ID `json:"settler"`
	Account ids.ID `json:"account"`
	Market  string `json:"market"`
	// UpdateData is a 0x prefixed price update payload.
	UpdateData string `json:"updateData"`
}

type SettleOrderReply struct {
	SizeDelta      string        `json:"sizeDelta"`
	OraclePrice    string        `json:"oraclePrice"`
	FillPrice      string        `json:"fillPrice"`
	OrderFee       string        `json:"orderFee"`
	KeeperFee      string        `json:"keeperFee"`
	PnL            string        `json:"pnl"`
	AccruedFunding string        `json:"accruedFunding"`
	Position       PositionReply `json:"position"`
	SettlementTime json.Uint64   `json:"settlementTime"`
}

// SettleOrder pushes fresh price data and settles the pending order.
func (s *Service) SettleOrder(r *http.Request, args *SettleOrderArgs, reply *SettleOrderReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "settleOrder"),
		log.Stringer("account", args.Account),
		log.String("market", args.Market),
	)

	data, err := decodeHex("updateData", args.UpdateData)
	if err != nil {
		return err
	}
	event, err := s.controller.SettleOrder(r.Context(), args.Settler, args.Account, args.Market, data)
	if err != nil {
		return err
	}
	reply.SizeDelta = fixedpoint.Format(event.SizeDelta)
	reply.OraclePrice = fixedpoint.Format(event.OraclePrice)
	reply.FillPrice = fixedpoint.Format(event.FillPrice)
	reply.OrderFee = fixedpoint.Format(event.OrderFee)
	reply.KeeperFee = fixedpoint.Format(event.KeeperFee)
	reply.PnL = fixedpoint.Format(event.PnL)
	reply.AccruedFunding = fixedpoint.Format(event.AccruedFunding)
	reply.Position = formatPosition(event.Position)
	reply.SettlementTime = json.Uint64(event.SettlementTime)
	return nil
}

type OrderArgs struct {
	Caller  ids.ID `json:"caller"`
	Account ids.ID `json:"account"`
	Market  string `json:"market"`
}

type CancelOrderReply struct {
	SizeDelta      string      `json:"sizeDelta"`
	CommitmentTime json.Uint64 `json:"commitmentTime"`
	Expired        bool        `json:"expired"`
}

// CancelOrder clears a pending order without trading.
func (s *Service) CancelOrder(r *http.Request, args *OrderArgs, reply *CancelOrderReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "cancelOrder"),
		log.Stringer("account", args.Account),
		log.String("market", args.Market),
	)

	event, err := s.controller.CancelOrder(r.Context(), args.Caller, args.Account, args.Market)
	if err != nil {
		return err
	}
	reply.SizeDelta = fixedpoint.Format(event.SizeDelta)
	reply.CommitmentTime = json.Uint64(event.CommitmentTime)
	reply.Expired = event.Expired
	return nil
}

type GetOrderReply struct {
	Order OrderReply `json:"order"`
}

// GetOrder returns the pending order of an account in a market.
func (s *Service) GetOrder(_ *http.Request, args *OrderArgs, reply *GetOrderReply) error {
	order, err := s.controller.GetOrder(args.Account, args.Market)
	if err != nil {
		return err
	}
	reply.Order = formatOrder(order)
	return nil
}

// ============================================
// Positions
// ============================================

type ModifyCollateralArgs struct {
	Caller  ids.ID `json:"caller"`
	Account ids.ID `json:"account"`
	Market  string `json:"market"`
	// Amount is positive to deposit and negative to withdraw.
	Amount string `json:"amount"`
}

type PositionChangeReply struct {
	Position PositionReply `json:"position"`
}

// ModifyCollateral deposits or withdraws margin.
func (s *Service) ModifyCollateral(r *http.Request, args *ModifyCollateralArgs, reply *PositionChangeReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "modifyCollateral"),
		log.Stringer("account", args.Account),
		log.String("market", args.Market),
	)

	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return err
	}
	event, err := s.controller.ModifyCollateral(r.Context(), args.Caller, args.Account, args.Market, amount)
	if err != nil {
		return err
	}
	reply.Position = formatPosition(event.Position)
	return nil
}

type LiquidatePositionArgs struct {
	Keeper  ids.ID `json:"keeper"`
	Account ids.ID `json:"account"`
	Market  string `json:"market"`
}

type LiquidatePositionReply struct {
	Size            string `json:"size"`
	Price           string `json:"price"`
	RemainingMargin string `json:"remainingMargin"`
	Reward          string `json:"reward"`
}

// LiquidatePosition closes an undercollateralized position.
func (s *Service) LiquidatePosition(r *http.Request, args *LiquidatePositionArgs, reply *LiquidatePositionReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "liquidatePosition"),
		log.Stringer("account", args.Account),
		log.String("market", args.Market),
	)

	event, err := s.controller.LiquidatePosition(r.Context(), args.Keeper, args.Account, args.Market)
	if err != nil {
		return err
	}
	reply.Size = fixedpoint.Format(event.Size)
	reply.Price = fixedpoint.Format(event.Price)
	reply.RemainingMargin = fixedpoint.Format(event.RemainingMargin)
	reply.Reward = fixedpoint.Format(event.Reward)
	return nil
}

type GetPositionReply struct {
	Position         PositionReply `json:"position"`
	Price            string        `json:"price"`
	PnL              string        `json:"pnl"`
	AccruedFunding   string        `json:"accruedFunding"`
	RemainingMargin  string        `json:"remainingMargin"`
	LiquidationPrice string        `json:"liquidationPrice"`
	CanLiquidate     bool          `json:"canLiquidate"`
}

// GetPosition returns a position marked to the reference price.
func (s *Service) GetPosition(r *http.Request, args *OrderArgs, reply *GetPositionReply) error {
	view, err := s.controller.GetPosition(r.Context(), args.Account, args.Market)
	if err != nil {
		return err
	}
	*reply = formatView(view)
	return nil
}

// ============================================
// Markets
// ============================================

type MarketArgs struct {
	Market string `json:"market"`
}

type GetMarketReply struct {
	Market MarketReply `json:"market"`
}

// GetMarket returns a market's parameters and aggregates.
func (s *Service) GetMarket(_ *http.Request, args *MarketArgs, reply *GetMarketReply) error {
	m, err := s.controller.GetMarket(args.Market)
	if err != nil {
		return err
	}
	reply.Market = formatMarket(m)
	return nil
}

type GetMarketsReply struct {
	Markets []MarketReply `json:"markets"`
}

// GetMarkets returns every market.
func (s *Service) GetMarkets(_ *http.Request, _ *struct{}, reply *GetMarketsReply) error {
	markets, err := s.controller.Markets()
	if err != nil {
		return err
	}
	reply.Markets = make([]MarketReply, 0, len(markets))
	for _, m := range markets {
		reply.Markets = append(reply.Markets, formatMarket(m))
	}
	return nil
}

type FillPriceArgs struct {
	Market      string `json:"market"`
	SizeDelta   string `json:"sizeDelta"`
	OraclePrice string `json:"oraclePrice"`
}

type FillPriceReply struct {
	FillPrice string `json:"fillPrice"`
}

// FillPrice quotes the fill price of a trade at a given oracle price.
func (s *Service) FillPrice(_ *http.Request, args *FillPriceArgs, reply *FillPriceReply) error {
	sizeDelta, err := parseAmount("sizeDelta", args.SizeDelta)
	if err != nil {
		return err
	}
	oraclePrice, err := parseAmount("oraclePrice", args.OraclePrice)
	if err != nil {
		return err
	}
	price, err := s.controller.FillPrice(args.Market, sizeDelta, oraclePrice)
	if err != nil {
		return err
	}
	reply.FillPrice = fixedpoint.Format(price)
	return nil
}

type OrderFeeArgs struct {
	Market    string `json:"market"`
	SizeDelta string `json:"sizeDelta"`
}

type OrderFeeReply struct {
	Fee string `json:"fee"`
}

// OrderFee quotes the fee of a trade at the current reference price.
func (s *Service) OrderFee(r *http.Request, args *OrderFeeArgs, reply *OrderFeeReply) error {
	sizeDelta, err := parseAmount("sizeDelta", args.SizeDelta)
	if err != nil {
		return err
	}
	fee, err := s.controller.OrderFee(r.Context(), args.Market, sizeDelta)
	if err != nil {
		return err
	}
	reply.Fee = fixedpoint.Format(fee)
	return nil
}

// ============================================
// Prices
// ============================================

type PushPriceArgs struct {
	// UpdateData is a 0x prefixed payload. When empty, Feed, Price and
	// PublishTime describe a single observation.
	UpdateData  string      `json:"updateData"`
	Feed        string      `json:"feed"`
	Price       string      `json:"price"`
	PublishTime json.Uint64 `json:"publishTime"`
}

type PushPriceReply struct {
	FeedID ids.ID `json:"feedID"`
}

// PushPrice applies a price update to the offchain feed.
func (s *Service) PushPrice(r *http.Request, args *PushPriceArgs, reply *PushPriceReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "pushPrice"),
		log.String("feed", args.Feed),
	)

	if args.UpdateData != "" {
		data, err := decodeHex("updateData", args.UpdateData)
		if err != nil {
			return err
		}
		return s.prices.PushUpdate(r.Context(), data)
	}

	if args.Feed == "" {
		return fmt.Errorf("%w: missing feed", errInvalidArgument)
	}
	price, err := parseAmount("price", args.Price)
	if err != nil {
		return err
	}
	feedID := oracle.FeedIDFromName(args.Feed)
	data, err := oracle.EncodeUpdate([]oracle.Observation{{
		FeedID:      feedID,
		Price:       price,
		PublishTime: int64(args.PublishTime),
	}})
	if err != nil {
		return err
	}
	if err := s.prices.PushUpdate(r.Context(), data); err != nil {
		return err
	}
	reply.FeedID = feedID
	return nil
}

// ============================================
// Accounts
// ============================================

type CreateAccountArgs struct {
	Account   ids.ID   `json:"account"`
	Owner     ids.ID   `json:"owner"`
	Delegates []ids.ID `json:"delegates"`
}

// CreateAccount registers an account.
func (s *Service) CreateAccount(_ *http.Request, args *CreateAccountArgs, _ *struct{}) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "createAccount"),
		log.Stringer("account", args.Account),
	)

	return s.controller.Update("create_account", func() error {
		return s.ledger.CreateAccount(args.Account, args.Owner, args.Delegates...)
	})
}

type AddDelegateArgs struct {
	Caller   ids.ID `json:"caller"`
	Account  ids.ID `json:"account"`
	Delegate ids.ID `json:"delegate"`
}

// AddDelegate authorizes another caller for an account. Only the owner may
// add delegates.
func (s *Service) AddDelegate(_ *http.Request, args *AddDelegateArgs, _ *struct{}) error {
	return s.controller.Update("add_delegate", func() error {
		return s.ledger.AddDelegate(args.Account, args.Caller, args.Delegate)
	})
}

type AccountArgs struct {
	Account ids.ID `json:"account"`
}

type GetBalanceReply struct {
	Balance string `json:"balance"`
}

// GetBalance returns an account's unallocated balance.
func (s *Service) GetBalance(_ *http.Request, args *AccountArgs, reply *GetBalanceReply) error {
	return s.controller.View(func() error {
		balance, err := s.ledger.Balance(args.Account)
		if err != nil {
			return err
		}
		reply.Balance = fixedpoint.Format(balance)
		return nil
	})
}

type TransferArgs struct {
	Caller ids.ID `json:"caller"`
	From   ids.ID `json:"from"`
	To     ids.ID `json:"to"`
	Amount string `json:"amount"`
}

// Transfer moves balance between accounts. The caller must be authorized
// for the source account.
func (s *Service) Transfer(_ *http.Request, args *TransferArgs, _ *struct{}) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "transfer"),
		log.Stringer("from", args.From),
		log.Stringer("to", args.To),
	)

	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return err
	}
	return s.controller.Update("transfer", func() error {
		authorized, err := s.ledger.IsAuthorized(args.From, args.Caller)
		if err != nil {
			return err
		}
		if !authorized {
			return fmt.Errorf("%w: %s for %s", orders.ErrUnauthorized, args.Caller, args.From)
		}
		return s.ledger.Transfer(args.From, args.To, amount)
	})
}

// ============================================
// Health
// ============================================

type PingReply struct {
	Success bool `json:"success"`
}

// Ping returns a simple health check response.
func (s *Service) Ping(_ *http.Request, _ *struct{}, reply *PingReply) error {
	reply.Success = true
	return nil
}
