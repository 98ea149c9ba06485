// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/luxfi/ids"
	"github.com/luxfi/utils/json"
)

// Client calls the perps API of a running node.
type Client struct {
	uri  string
	http *http.Client
}

// NewClient returns a client for the endpoint at uri, such as
// "http://127.0.0.1:9650/ext/perps".
func NewClient(uri string) *Client {
	return &Client{
		uri:  uri,
		http: http.DefaultClient,
	}
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	body, err := json2.EncodeClientRequest(Name+"."+method, args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	return json2.DecodeClientResponse(resp.Body, reply)
}

func (c *Client) Ping(ctx context.Context) (bool, error) {
	reply := &PingReply{}
	err := c.call(ctx, "ping", &struct{}{}, reply)
	return reply.Success, err
}

func (c *Client) GetMarket(ctx context.Context, market string) (MarketReply, error) {
	reply := &GetMarketReply{}
	err := c.call(ctx, "getMarket", &MarketArgs{Market: market}, reply)
	return reply.Market, err
}

func (c *Client) GetMarkets(ctx context.Context) ([]MarketReply, error) {
	reply := &GetMarketsReply{}
	err := c.call(ctx, "getMarkets", &struct{}{}, reply)
	return reply.Markets, err
}

func (c *Client) FillPrice(ctx context.Context, market, sizeDelta, oraclePrice string) (string, error) {
	reply := &FillPriceReply{}
	err := c.call(ctx, "fillPrice", &FillPriceArgs{
		Market:      market,
		SizeDelta:   sizeDelta,
		OraclePrice: oraclePrice,
	}, reply)
	return reply.FillPrice, err
}

func (c *Client) OrderFee(ctx context.Context, market, sizeDelta string) (string, error) {
	reply := &OrderFeeReply{}
	err := c.call(ctx, "orderFee", &OrderFeeArgs{
		Market:    market,
		SizeDelta: sizeDelta,
	}, reply)
	return reply.Fee, err
}

func (c *Client) GetPosition(ctx context.Context, account ids.ID, market string) (GetPositionReply, error) {
	reply := &GetPositionReply{}
	err := c.call(ctx, "getPosition", &OrderArgs{Account: account, Market: market}, reply)
	return *reply, err
}

func (c *Client) GetOrder(ctx context.Context, account ids.ID, market string) (OrderReply, error) {
	reply := &GetOrderReply{}
	err := c.call(ctx, "getOrder", &OrderArgs{Account: account, Market: market}, reply)
	return reply.Order, err
}

func (c *Client) GetBalance(ctx context.Context, account ids.ID) (string, error) {
	reply := &GetBalanceReply{}
	err := c.call(ctx, "getBalance", &AccountArgs{Account: account}, reply)
	return reply.Balance, err
}

func (c *Client) CreateAccount(ctx context.Context, account, owner ids.ID, delegates ...ids.ID) error {
	return c.call(ctx, "createAccount", &CreateAccountArgs{
		Account:   account,
		Owner:     owner,
		Delegates: delegates,
	}, &struct{}{})
}

func (c *Client) Transfer(ctx context.Context, caller, from, to ids.ID, amount string) error {
	return c.call(ctx, "transfer", &TransferArgs{
		Caller: caller,
		From:   from,
		To:     to,
		Amount: amount,
	}, &struct{}{})
}

func (c *Client) ModifyCollateral(ctx context.Context, caller, account ids.ID, market, amount string) (PositionReply, error) {
	reply := &PositionChangeReply{}
	err := c.call(ctx, "modifyCollateral", &ModifyCollateralArgs{
		Caller:  caller,
		Account: account,
		Market:  market,
		Amount:  amount,
	}, reply)
	return reply.Position, err
}

func (c *Client) CommitOrder(ctx context.Context, args CommitOrderArgs) (CommitOrderReply, error) {
	reply := &CommitOrderReply{}
	err := c.call(ctx, "commitOrder", &args, reply)
	return *reply, err
}

func (c *Client) SettleOrder(ctx context.Context, args SettleOrderArgs) (SettleOrderReply, error) {
	reply := &SettleOrderReply{}
	err := c.call(ctx, "settleOrder", &args, reply)
	return *reply, err
}

func (c *Client) CancelOrder(ctx context.Context, caller, account ids.ID, market string) (CancelOrderReply, error) {
	reply := &CancelOrderReply{}
	err := c.call(ctx, "cancelOrder", &OrderArgs{
		Caller:  caller,
		Account: account,
		Market:  market,
	}, reply)
	return *reply, err
}

func (c *Client) LiquidatePosition(ctx context.Context, keeper, account ids.ID, market string) (LiquidatePositionReply, error) {
	reply := &LiquidatePositionReply{}
	err := c.call(ctx, "liquidatePosition", &LiquidatePositionArgs{
		Keeper:  keeper,
		Account: account,
		Market:  market,
	}, reply)
	return *reply, err
}

func (c *Client) PushPrice(ctx context.Context, feed, price string, publishTime uint64) (ids.ID, error) {
	reply := &PushPriceReply{}
	err := c.call(ctx, "pushPrice", &PushPriceArgs{
		Feed:        feed,
		Price:       price,
		PublishTime: json.Uint64(publishTime),
	}, reply)
	return reply.FeedID, err
}
