package domain

import "time"

// TargetOrderSet is the engine's sole output artifact: the canonical set of
// orders that should exist on the exchange right now. It is recomputed in
// full on every relevant event and published atomically; the execution layer
// diffs it against live orders and converges the exchange toward it.
type TargetOrderSet struct {
	StopNotional   float64
	LimitNotional  float64
	MarketNotional float64
	Orders         []ConceptualOrder
	GeneratedAt    time.Time
}

// TotalNotional returns the combined notional across all pools.
func (t TargetOrderSet) TotalNotional() float64 {
	return t.StopNotional + t.LimitNotional + t.MarketNotional
}

// TargetPublisher is the core-exposed boundary toward the execution/sync
// layer: each recomputed set is handed over here. Implementations must treat
// the set as immutable.
type TargetPublisher interface {
	PublishTargetOrders(set TargetOrderSet) error
}
