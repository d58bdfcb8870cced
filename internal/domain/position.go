package domain

import "time"

// PositionSpec is what the position *is*: the immutable user intent the whole
// lifecycle hangs off. Created once from the CLI, never mutated, read-shared
// with every attached protocol.
type PositionSpec struct {
	Asset          string
	Side           Side
	TargetNotional float64 // quote currency (USDT)
}

// PositionAcquisition records the outcome of the market-entry phase.
// AcquiredNotional is written only by the acquisition polling loop and grows
// monotonically toward TargetNotional; once acquisition completes the value
// is frozen and the record is owned by the followup phase.
type PositionAcquisition struct {
	Spec             PositionSpec
	Symbol           string
	OrderID          int64
	Quantity         float64 // base-asset quantity actually submitted
	TargetNotional   float64
	AcquiredNotional float64
	AcquiredAt       time.Time
}

// FollowupReport summarises how a followup loop ended. Clean is true only
// when the position closed its full acquired notional; a simultaneous-closure
// exit (every protocol queue and the fill feed gone while notional remains)
// sets Clean to false so the operator can tell the two exits apart.
type FollowupReport struct {
	Acquisition    PositionAcquisition
	ClosedNotional float64
	Clean          bool
	FinishedAt     time.Time
}
