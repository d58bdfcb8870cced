package domain

import "context"

// PositionJournal persists position lifecycle records. The journal is
// observational only: the in-memory engine state is authoritative and journal
// failures never abort the lifecycle.
type PositionJournal interface {
	Create(ctx context.Context, id string, acq PositionAcquisition) error
	RecordClose(ctx context.Context, id string, report FollowupReport) error
}

// FillJournal persists the append-only fill ledger. A later record for the
// same order id supersedes the stored notional (cumulative fill semantics).
type FillJournal interface {
	Record(ctx context.Context, positionID string, fill Fill) error
}
