// Package position implements the position lifecycle: market-entry
// acquisition, the pure order-reconciliation engine, and the event loop that
// orchestrates followup protocols over an acquired position.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/exchange"
)

// defaultPollInterval paces order-status polling during acquisition.
const defaultPollInterval = time.Second

// Acquirer opens positions by market order and blocks until the entry is
// fully filled.
type Acquirer struct {
	ex           exchange.Client
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewAcquirer creates an Acquirer polling order status every pollInterval
// (the default is used when zero).
func NewAcquirer(ex exchange.Client, pollInterval time.Duration, logger *slog.Logger) *Acquirer {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Acquirer{
		ex:           ex,
		logger:       logger.With(slog.String("component", "acquirer")),
		pollInterval: pollInterval,
	}
}

// Acquire converts a position spec into an acquired position: it sizes a
// market order from the current price and the symbol's quantity precision,
// submits it, and polls until the order is fully filled. A non-filled
// terminal status is fatal; transient poll failures are retried on the next
// tick. The returned acquisition carries the realized notional, which on a
// market order can differ from the target.
func (a *Acquirer) Acquire(ctx context.Context, spec domain.PositionSpec) (domain.PositionAcquisition, error) {
	if spec.TargetNotional <= 0 {
		return domain.PositionAcquisition{}, fmt.Errorf("position: acquire %s: notional %.8g: %w",
			spec.Asset, spec.TargetNotional, domain.ErrZeroSize)
	}
	symbol := exchange.FuturesSymbol(spec.Asset)

	var (
		price     float64
		precision int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		price, err = a.ex.Price(gctx, spec.Asset)
		return err
	})
	g.Go(func() error {
		var err error
		precision, err = a.ex.QuantityPrecision(gctx, spec.Asset)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PositionAcquisition{}, fmt.Errorf("position: acquire %s: %w", symbol, err)
	}

	quantity := roundToPrecision(spec.TargetNotional/price, precision)
	if quantity <= 0 {
		return domain.PositionAcquisition{}, fmt.Errorf("position: acquire %s: %.8g USDT at price %.8g rounds to zero quantity at precision %d: %w",
			symbol, spec.TargetNotional, price, precision, domain.ErrZeroSize)
	}

	a.logger.Info("submitting entry order",
		slog.String("symbol", symbol),
		slog.String("side", string(spec.Side)),
		slog.Float64("price", price),
		slog.Float64("quantity", quantity),
	)
	orderID, err := a.ex.SubmitMarketOrder(ctx, symbol, spec.Side, quantity)
	if err != nil {
		return domain.PositionAcquisition{}, fmt.Errorf("position: acquire %s: %w", symbol, err)
	}

	acq := domain.PositionAcquisition{
		Spec:           spec,
		Symbol:         symbol,
		OrderID:        orderID,
		Quantity:       quantity,
		TargetNotional: spec.TargetNotional,
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return acq, ctx.Err()
		case <-ticker.C:
		}

		poll, err := a.ex.PollOrder(ctx, symbol, orderID)
		if err != nil {
			// Poll failures are transient until proven otherwise; the order is
			// already on the exchange, so keep watching it.
			a.logger.Warn("entry order poll failed",
				slog.Int64("order_id", orderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		acq.AcquiredNotional = poll.FilledNotional

		switch {
		case poll.Status == exchange.OrderStatusFilled:
			acq.AcquiredAt = time.Now().UTC()
			a.logger.Info("position acquired",
				slog.String("symbol", symbol),
				slog.Int64("order_id", orderID),
				slog.Float64("acquired_notional", acq.AcquiredNotional),
				slog.Float64("avg_price", poll.AvgPrice),
			)
			return acq, nil
		case poll.Status.Terminal():
			return acq, fmt.Errorf("position: acquire %s: order %d status %s: %w",
				symbol, orderID, poll.Status, domain.ErrOrderDead)
		}
	}
}

// roundToPrecision rounds q to the given number of decimal places, half away
// from zero.
func roundToPrecision(q float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(q*scale) / scale
}
