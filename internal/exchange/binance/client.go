// Package binance adapts Binance USDT-M futures to the exchange.Client
// interface. REST calls go through go-binance; the mark-price stream speaks
// the raw fstream websocket (see markprice.go).
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/exchange"
)

// Config holds Binance credentials and endpoints.
type Config struct {
	APIKey    string
	SecretKey string
	// WsHost is the futures stream host, e.g. "wss://fstream.binance.com".
	WsHost  string
	Testnet bool
}

// Client implements exchange.Client against Binance USDT-M futures.
type Client struct {
	rest   *futures.Client
	wsHost string
	logger *slog.Logger

	// Quantity precision per symbol rarely changes; cache it so repeated
	// protocol attaches don't refetch exchangeInfo.
	precMu sync.Mutex
	prec   map[string]int
}

// New creates a Binance futures adapter.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	wsHost := cfg.WsHost
	if wsHost == "" {
		wsHost = "wss://fstream.binance.com"
	}
	return &Client{
		rest:   futures.NewClient(cfg.APIKey, cfg.SecretKey),
		wsHost: wsHost,
		logger: logger.With(slog.String("component", "binance")),
		prec:   make(map[string]int),
	}
}

// Name returns the adapter identifier.
func (c *Client) Name() string {
	return "binance-futures"
}

// TotalBalance sums all futures wallet asset balances.
func (c *Client) TotalBalance(ctx context.Context) (float64, error) {
	balances, err := c.rest.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: get balance: %w", err)
	}
	var total float64
	for _, b := range balances {
		v, err := strconv.ParseFloat(b.Balance, 64)
		if err != nil {
			return 0, fmt.Errorf("binance: parse balance %q for %s: %w", b.Balance, b.Asset, err)
		}
		total += v
	}
	return total, nil
}

// Price returns the latest futures price for the asset.
func (c *Client) Price(ctx context.Context, asset string) (float64, error) {
	symbol := exchange.FuturesSymbol(asset)
	prices, err := c.rest.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: list prices %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("binance: parse price %q: %w", p.Price, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("binance: price for %s: %w", symbol, domain.ErrNotFound)
}

// QuantityPrecision returns the base-asset decimals accepted in order
// quantities for the asset, from exchangeInfo.
func (c *Client) QuantityPrecision(ctx context.Context, asset string) (int, error) {
	symbol := exchange.FuturesSymbol(asset)

	c.precMu.Lock()
	if p, ok := c.prec[symbol]; ok {
		c.precMu.Unlock()
		return p, nil
	}
	c.precMu.Unlock()

	info, err := c.rest.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		c.precMu.Lock()
		c.prec[symbol] = s.QuantityPrecision
		c.precMu.Unlock()
		return s.QuantityPrecision, nil
	}
	return 0, fmt.Errorf("binance: symbol %s in exchange info: %w", symbol, domain.ErrNotFound)
}

// SubmitMarketOrder places a market order for quantity base units.
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (int64, error) {
	res, err := c.rest.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: create market order %s %s: %w", side, symbol, err)
	}
	c.logger.Info("market order submitted",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("quantity", quantity),
		slog.Int64("order_id", res.OrderID),
	)
	return res.OrderID, nil
}

// PollOrder reads the current state of an order. FilledNotional is taken from
// the cumulative quote quantity, so it is fill-to-date, not a delta.
func (c *Client) PollOrder(ctx context.Context, symbol string, orderID int64) (exchange.OrderPoll, error) {
	o, err := c.rest.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return exchange.OrderPoll{}, fmt.Errorf("binance: get order %d %s: %w", orderID, symbol, err)
	}

	executed, err := strconv.ParseFloat(o.ExecutedQuantity, 64)
	if err != nil {
		return exchange.OrderPoll{}, fmt.Errorf("binance: parse executedQty %q: %w", o.ExecutedQuantity, err)
	}
	avgPrice, err := strconv.ParseFloat(o.AvgPrice, 64)
	if err != nil {
		return exchange.OrderPoll{}, fmt.Errorf("binance: parse avgPrice %q: %w", o.AvgPrice, err)
	}
	notional, err := strconv.ParseFloat(o.CumQuote, 64)
	if err != nil {
		return exchange.OrderPoll{}, fmt.Errorf("binance: parse cumQuote %q: %w", o.CumQuote, err)
	}

	return exchange.OrderPoll{
		Status:         exchange.OrderStatus(o.Status),
		ExecutedQty:    executed,
		AvgPrice:       avgPrice,
		FilledNotional: notional,
	}, nil
}

var _ exchange.Client = (*Client)(nil)
