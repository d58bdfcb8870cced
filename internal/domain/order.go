package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Side indicates the direction of a position or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind is the conceptual order type. It deliberately covers only the
// kinds the reconciliation engine prioritises; exchange-specific variants
// (stop-limit, take-profit-limit, ...) belong to the execution layer.
type OrderKind string

const (
	OrderKindMarket     OrderKind = "MARKET"
	OrderKindLimit      OrderKind = "LIMIT"
	OrderKindStopMarket OrderKind = "STOP_MARKET"
)

// ProtocolOrder is a desired order as emitted by a followup protocol. The
// protocol does not know its own notional entitlement, so size is expressed
// as a fraction of the emitting instance's controlled share; the
// reconciliation engine resolves fractions into notional. The ID is stable
// for as long as the order is live: a protocol that re-emits a changed batch
// mints fresh IDs, implicitly retracting the old orders.
type ProtocolOrder struct {
	ID       uuid.UUID
	Kind     OrderKind
	Symbol   string
	Side     Side
	Price    float64 // unset for market orders
	Fraction float64 // share of the producer's controlled notional, (0, 1]
}

// ConceptualOrder is a desired order with its size resolved to quote-currency
// notional. It is a value type: a producer's later batch supersedes its
// earlier orders wholesale, never field-by-field.
type ConceptualOrder struct {
	ID       uuid.UUID
	Producer string
	Kind     OrderKind
	Symbol   string
	Side     Side
	Price    float64
	Notional float64
}

// WithNotional returns a copy of o resized to n. Used by the reconciliation
// engine when clipping an order to remaining budget.
func (o ConceptualOrder) WithNotional(n float64) ConceptualOrder {
	o.Notional = n
	return o
}

func (o ConceptualOrder) String() string {
	return fmt.Sprintf("%s %s %s %.8g @ %.8g (%s)", o.Kind, o.Side, o.Symbol, o.Notional, o.Price, o.Producer)
}
