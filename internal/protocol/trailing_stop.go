package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/exchange"
)

// priceBuffer is the mark-price channel depth between the stream reader and
// the protocol loop. Ticks are latest-wins in spirit; a small buffer only
// smooths bursts.
const priceBuffer = 64

// TrailingStop keeps a protective stop a fixed percentage behind the best
// price seen since attach. Only one target order is live at a time; each
// trigger crossing emits a full replacement batch, implicitly retracting the
// previous stop.
type TrailingStop struct {
	id      string
	percent float64 // fractional offset, e.g. 0.005 for 0.5%
	ex      exchange.Client
	logger  *slog.Logger
	cache   *trailingStopCache
}

// trailingStopCache is the per-instance running state, seeded once from
// exchange context before attach. Both extremes are tracked in case the
// position side were ever flipped, though it is not meant to be.
type trailingStopCache struct {
	symbol string
	top    float64
	bottom float64
}

// newTrailingStop builds a TrailingStop from compact-format params. The "p"
// param is in percent, so "ts-p0.5" trails by 0.5%.
func newTrailingStop(id string, params Params, ex exchange.Client, logger *slog.Logger) (FollowupProtocol, error) {
	pct, ok := params["p"]
	if !ok {
		return nil, fmt.Errorf("protocol: trailing stop %q: missing param p", id)
	}
	if pct <= 0 || pct >= 100 {
		return nil, fmt.Errorf("protocol: trailing stop %q: p must be in (0, 100), got %g", id, pct)
	}
	return &TrailingStop{
		id:      id,
		percent: pct / 100,
		ex:      ex,
		logger:  logger.With(slog.String("component", "trailing_stop"), slog.String("producer", id)),
	}, nil
}

// ID returns the producer id tagging every emitted batch.
func (t *TrailingStop) ID() string { return t.id }

// Subtype labels trailing stop as a momentum-style protocol for budget sharing.
func (t *TrailingStop) Subtype() domain.ProtocolType { return domain.ProtocolTypeMomentum }

// Init seeds the running high/low with the current market price.
func (t *TrailingStop) Init(ctx context.Context, spec domain.PositionSpec) error {
	price, err := t.ex.Price(ctx, spec.Asset)
	if err != nil {
		return fmt.Errorf("protocol: trailing stop %s: seed price: %w", t.id, err)
	}
	t.cache = &trailingStopCache{
		symbol: exchange.FuturesSymbol(spec.Asset),
		top:    price,
		bottom: price,
	}
	t.logger.Info("cache built", slog.Float64("seed_price", price))
	return nil
}

// Attach consumes the mark-price stream and pushes a replacement batch each
// time the trailed extreme advances. It returns when the stream permanently
// fails (the error is the disconnect report) or the context is cancelled.
func (t *TrailingStop) Attach(ctx context.Context, out chan<- domain.OrderBatch, spec domain.PositionSpec) error {
	if t.cache == nil {
		return fmt.Errorf("protocol: trailing stop %s: Attach before Init", t.id)
	}

	prices := make(chan exchange.PricePoint, priceBuffer)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- t.ex.StreamMarkPrice(ctx, t.cache.symbol, prices)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-streamErr:
			if ctx.Err() != nil {
				// The stream ended because we are shutting down, not because
				// the source died.
				return ctx.Err()
			}
			if err == nil {
				return fmt.Errorf("protocol: trailing stop %s: %w", t.id, domain.ErrStreamClosed)
			}
			return fmt.Errorf("protocol: trailing stop %s: %w", t.id, err)
		case point := <-prices:
			batch, changed := t.observe(point.Price, spec.Side)
			if !changed {
				continue
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// observe updates the cached extremes and, when the trailed one advanced,
// returns the replacement batch holding the single new stop order.
func (t *TrailingStop) observe(price float64, side domain.Side) (domain.OrderBatch, bool) {
	cache := t.cache
	var stopPrice float64
	emit := false

	if price < cache.bottom {
		cache.bottom = price
		if side == domain.SideSell {
			stopPrice = price + price*t.percent
			emit = true
		}
	}
	if price > cache.top {
		cache.top = price
		if side == domain.SideBuy {
			stopPrice = price - price*t.percent
			emit = true
		}
	}
	if !emit {
		return domain.OrderBatch{}, false
	}

	t.logger.Debug("stop moved",
		slog.Float64("price", price),
		slog.Float64("stop_price", stopPrice),
	)
	return domain.OrderBatch{
		ProducerID: t.id,
		Subtype:    t.Subtype(),
		Orders: []domain.ProtocolOrder{{
			ID:       uuid.New(),
			Kind:     domain.OrderKindStopMarket,
			Symbol:   cache.symbol,
			Side:     side.Opposite(),
			Price:    stopPrice,
			Fraction: 1.0,
		}},
		EmittedAt: time.Now().UTC(),
	}, true
}

var _ FollowupProtocol = (*TrailingStop)(nil)
