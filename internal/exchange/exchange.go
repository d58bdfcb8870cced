// Package exchange defines the abstract exchange client the position core
// consumes. The core never talks wire formats; concrete adapters (see the
// binance subpackage) mirror their exchange's schema and carry no decision
// logic of their own.
package exchange

import (
	"context"
	"time"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// OrderStatus is the lifecycle status of a live exchange order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusExpiredInMatch  OrderStatus = "EXPIRED_IN_MATCH"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired,
		OrderStatusExpiredInMatch, OrderStatusRejected:
		return true
	}
	return false
}

// OrderPoll is a point-in-time view of one order, as returned by a status
// poll. FilledNotional is cumulative fill-to-date in quote currency.
type OrderPoll struct {
	Status         OrderStatus
	ExecutedQty    float64
	AvgPrice       float64
	FilledNotional float64
}

// PricePoint is one tick of a mark-price stream.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// Client is the exchange surface the core depends on.
type Client interface {
	Name() string

	// TotalBalance returns the summed futures wallet balance in quote currency.
	TotalBalance(ctx context.Context) (float64, error)

	// Price returns the current futures price for the asset (quote USDT).
	Price(ctx context.Context, asset string) (float64, error)

	// QuantityPrecision returns the number of base-asset decimals the
	// exchange accepts in order quantities for the asset.
	QuantityPrecision(ctx context.Context, asset string) (int, error)

	// SubmitMarketOrder places a market order and returns the exchange order id.
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (int64, error)

	// PollOrder reads the current state of a previously submitted order.
	PollOrder(ctx context.Context, symbol string, orderID int64) (OrderPoll, error)

	// StreamMarkPrice delivers mark-price ticks for symbol onto out until ctx
	// is cancelled or the connection permanently fails. It blocks for the
	// stream's lifetime and never closes out; the returned error is nil only
	// on context cancellation. The sequence is infinite and non-restartable
	// from the caller's point of view: reconnects are the adapter's business.
	StreamMarkPrice(ctx context.Context, symbol string, out chan<- PricePoint) error
}
