package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// JournalStore implements domain.PositionJournal and domain.FillJournal
// using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Create inserts a freshly acquired position.
func (s *JournalStore) Create(ctx context.Context, id string, acq domain.PositionAcquisition) error {
	const query = `
		INSERT INTO positions (
			id, asset, symbol, side, exchange_order_id,
			quantity, target_notional, acquired_notional,
			status, acquired_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			'open', $9, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		id, acq.Spec.Asset, acq.Symbol, string(acq.Spec.Side), acq.OrderID,
		acq.Quantity, acq.TargetNotional, acq.AcquiredNotional,
		acq.AcquiredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", id, err)
	}
	return nil
}

// RecordClose marks the position finished with its final closed notional.
func (s *JournalStore) RecordClose(ctx context.Context, id string, report domain.FollowupReport) error {
	const query = `
		UPDATE positions SET
			closed_notional = $2,
			status          = 'closed',
			clean_close     = $3,
			finished_at     = $4,
			updated_at      = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, report.ClosedNotional, report.Clean, report.FinishedAt)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Record upserts a cumulative fill observation for one conceptual order.
func (s *JournalStore) Record(ctx context.Context, positionID string, fill domain.Fill) error {
	const query = `
		INSERT INTO fills (position_id, order_id, filled_notional, observed_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (position_id, order_id) DO UPDATE SET
			filled_notional = EXCLUDED.filled_notional,
			observed_at     = EXCLUDED.observed_at,
			updated_at      = NOW()`

	_, err := s.pool.Exec(ctx, query, positionID, fill.OrderID, fill.FilledNotional, fill.At)
	if err != nil {
		return fmt.Errorf("postgres: record fill %s for position %s: %w", fill.OrderID, positionID, err)
	}
	return nil
}

var (
	_ domain.PositionJournal = (*JournalStore)(nil)
	_ domain.FillJournal     = (*JournalStore)(nil)
)
