package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// fillBuffer is the decoded-fill channel depth between the subscription
// reader and the followup loop.
const fillBuffer = 128

// fillWire is the JSON schema the execution layer publishes per fill report.
// filled_notional is cumulative fill-to-date for the order.
type fillWire struct {
	OrderID        string    `json:"order_id"`
	FilledNotional float64   `json:"filled_notional"`
	At             time.Time `json:"at"`
}

// FillFeed subscribes to the execution layer's fill channel and decodes
// reports into domain fills.
type FillFeed struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

// NewFillFeed creates a feed reading from channel.
func NewFillFeed(c *Client, channel string, logger *slog.Logger) *FillFeed {
	return &FillFeed{
		rdb:     c.Underlying(),
		channel: channel,
		logger:  logger.With(slog.String("component", "fill_feed")),
	}
}

// Subscribe returns a channel of decoded fills. The channel closes when the
// context is cancelled or the subscription is lost; malformed payloads are
// logged and dropped.
func (f *FillFeed) Subscribe(ctx context.Context) (<-chan domain.Fill, error) {
	pubsub := f.rdb.Subscribe(ctx, f.channel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", f.channel, err)
	}

	out := make(chan domain.Fill, fillBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fill, err := decodeFill([]byte(msg.Payload))
				if err != nil {
					f.logger.Warn("dropping malformed fill report", slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- fill:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func decodeFill(payload []byte) (domain.Fill, error) {
	var wire fillWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.Fill{}, fmt.Errorf("decode fill: %w", err)
	}
	id, err := uuid.Parse(wire.OrderID)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("decode fill order id %q: %w", wire.OrderID, err)
	}
	if wire.FilledNotional < 0 {
		return domain.Fill{}, fmt.Errorf("decode fill %s: negative notional %g", wire.OrderID, wire.FilledNotional)
	}
	at := wire.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return domain.Fill{
		OrderID:        id,
		FilledNotional: wire.FilledNotional,
		At:             at,
	}, nil
}
