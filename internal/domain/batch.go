package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolType groups followup protocols that share a notional budget. With k
// attached instances of the same type, each is entitled to exactly 1/k of the
// acquired notional.
type ProtocolType string

const (
	ProtocolTypeMomentum ProtocolType = "momentum"
	ProtocolTypeTP       ProtocolType = "take_profit"
)

// OrderBatch is the latest full output of one protocol instance. A batch
// fully replaces the previous batch from the same producer; there is no
// incremental patching across batches.
type OrderBatch struct {
	ProducerID string
	Subtype    ProtocolType
	Orders     []ProtocolOrder
	EmittedAt  time.Time
}

// Fill reports cumulative filled notional for one conceptual order, as
// observed by the execution layer. Binance reports fill-to-date per order,
// so a later Fill for the same ID overwrites the ledger entry rather than
// adding to it.
type Fill struct {
	OrderID        uuid.UUID
	FilledNotional float64
	At             time.Time
}
