package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// publishTimeout bounds one publication round-trip. The caller treats a
// failed publish as transient; the next event re-publishes a fresh set.
const publishTimeout = 5 * time.Second

// snapshotTTL keeps the latest-set snapshot from outliving a crashed engine
// by too long.
const snapshotTTL = 24 * time.Hour

// targetSetWire is the published JSON schema for a target-order set.
type targetSetWire struct {
	StopNotional   float64           `json:"stop_notional"`
	LimitNotional  float64           `json:"limit_notional"`
	MarketNotional float64           `json:"market_notional"`
	Orders         []targetOrderWire `json:"orders"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

type targetOrderWire struct {
	ID       string  `json:"id"`
	Producer string  `json:"producer"`
	Kind     string  `json:"kind"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    float64 `json:"price,omitempty"`
	Notional float64 `json:"notional"`
}

// TargetPublisher implements domain.TargetPublisher over Redis: every set is
// written to a latest-snapshot key and broadcast on a Pub/Sub channel, in
// that order, so a subscriber waking up on the broadcast always finds a
// snapshot at least as new.
type TargetPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewTargetPublisher creates a publisher broadcasting on channel.
func NewTargetPublisher(c *Client, channel string) *TargetPublisher {
	return &TargetPublisher{rdb: c.Underlying(), channel: channel}
}

// SnapshotKey is where the latest published set is stored.
func (p *TargetPublisher) SnapshotKey() string {
	return p.channel + ":latest"
}

// PublishTargetOrders encodes the set, stores it as the latest snapshot, and
// broadcasts it.
func (p *TargetPublisher) PublishTargetOrders(set domain.TargetOrderSet) error {
	wire := targetSetWire{
		StopNotional:   set.StopNotional,
		LimitNotional:  set.LimitNotional,
		MarketNotional: set.MarketNotional,
		Orders:         make([]targetOrderWire, 0, len(set.Orders)),
		GeneratedAt:    set.GeneratedAt,
	}
	for _, o := range set.Orders {
		wire.Orders = append(wire.Orders, targetOrderWire{
			ID:       o.ID.String(),
			Producer: o.Producer,
			Kind:     string(o.Kind),
			Symbol:   o.Symbol,
			Side:     string(o.Side),
			Price:    o.Price,
			Notional: o.Notional,
		})
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("redis: encode target set: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.rdb.Set(ctx, p.SnapshotKey(), payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: store target snapshot: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish target set on %s: %w", p.channel, err)
	}
	return nil
}

var _ domain.TargetPublisher = (*TargetPublisher)(nil)
