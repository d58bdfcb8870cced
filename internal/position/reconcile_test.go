package position

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

func stopOrder(id uuid.UUID, price, fraction float64) domain.ProtocolOrder {
	return domain.ProtocolOrder{
		ID:       id,
		Kind:     domain.OrderKindStopMarket,
		Symbol:   "BTCUSDT",
		Side:     domain.SideSell,
		Price:    price,
		Fraction: fraction,
	}
}

func limitOrder(id uuid.UUID, price, fraction float64) domain.ProtocolOrder {
	return domain.ProtocolOrder{
		ID:       id,
		Kind:     domain.OrderKindLimit,
		Symbol:   "BTCUSDT",
		Side:     domain.SideSell,
		Price:    price,
		Fraction: fraction,
	}
}

func marketOrder(id uuid.UUID, fraction float64) domain.ProtocolOrder {
	return domain.ProtocolOrder{
		ID:       id,
		Kind:     domain.OrderKindMarket,
		Symbol:   "BTCUSDT",
		Side:     domain.SideSell,
		Fraction: fraction,
	}
}

func momentumBatch(producer string, orders ...domain.ProtocolOrder) domain.OrderBatch {
	return domain.OrderBatch{
		ProducerID: producer,
		Subtype:    domain.ProtocolTypeMomentum,
		Orders:     orders,
	}
}

func TestRecomputeMarketConsumesAllTrackers(t *testing.T) {
	mkt := uuid.New()
	stp := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", marketOrder(mkt, 1.0), stopOrder(stp, 90, 1.0)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 1},
		Acquired:      100,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)

	assert.InDelta(t, 100, set.MarketNotional, 1e-9)
	// The stop survives as an order but its budget is gone.
	assert.InDelta(t, 0, set.StopNotional, 1e-9)
	require.Len(t, set.Orders, 2)
	assert.Equal(t, mkt, set.Orders[0].ID)
	assert.InDelta(t, 100, set.Orders[0].Notional, 1e-9)
	assert.Equal(t, stp, set.Orders[1].ID)
	assert.InDelta(t, 0, set.Orders[1].Notional, 1e-9)
}

func TestRecomputeBuyStopsFavorHigherPrice(t *testing.T) {
	near := uuid.New()
	far := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", stopOrder(far, 90, 0.6), stopOrder(near, 95, 0.6)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 1},
		Acquired:      1000,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)

	// 0.6 + 0.6 of a 1000 share overshoots: the nearer stop (higher price for
	// a long) stays whole, the far one absorbs the clip.
	require.Len(t, set.Orders, 2)
	assert.Equal(t, near, set.Orders[0].ID)
	assert.InDelta(t, 600, set.Orders[0].Notional, 1e-9)
	assert.Equal(t, far, set.Orders[1].ID)
	assert.InDelta(t, 400, set.Orders[1].Notional, 1e-9)
	assert.InDelta(t, 1000, set.StopNotional, 1e-9)
}

func TestRecomputeSellInvertsFavorability(t *testing.T) {
	lowStop := uuid.New()
	highStop := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", stopOrder(highStop, 110, 0.8), stopOrder(lowStop, 105, 0.8)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 1},
		Acquired:      1000,
		Side:          domain.SideSell,
	})
	require.NoError(t, err)

	// For a short the protective stop sits above; the lower price is nearer
	// and keeps its full size.
	require.Len(t, set.Orders, 2)
	assert.Equal(t, lowStop, set.Orders[0].ID)
	assert.InDelta(t, 800, set.Orders[0].Notional, 1e-9)
	assert.Equal(t, highStop, set.Orders[1].ID)
	assert.InDelta(t, 200, set.Orders[1].Notional, 1e-9)
}

func TestRecomputeBuyLimitsFavorLowerPrice(t *testing.T) {
	near := uuid.New()
	far := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", limitOrder(far, 130, 0.7), limitOrder(near, 120, 0.7)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 1},
		Acquired:      1000,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)

	require.Len(t, set.Orders, 2)
	assert.Equal(t, near, set.Orders[0].ID)
	assert.InDelta(t, 700, set.Orders[0].Notional, 1e-9)
	assert.Equal(t, far, set.Orders[1].ID)
	assert.InDelta(t, 300, set.Orders[1].Notional, 1e-9)
	assert.InDelta(t, 1000, set.LimitNotional, 1e-9)
}

func TestRecomputeSubtypeBudgetSplit(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p1": momentumBatch("p1", stopOrder(a, 95, 1.0)),
			"p2": momentumBatch("p2", stopOrder(b, 90, 1.0)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 2},
		Acquired:      1000,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)

	// Two instances of the same subtype each control half the notional.
	require.Len(t, set.Orders, 2)
	assert.InDelta(t, 500, set.Orders[0].Notional, 1e-9)
	assert.InDelta(t, 500, set.Orders[1].Notional, 1e-9)
	assert.InDelta(t, 1000, set.StopNotional, 1e-9)
}

func TestRecomputeFillsNetAgainstEntitlement(t *testing.T) {
	partial := uuid.New()
	full := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", stopOrder(partial, 95, 0.5), stopOrder(full, 90, 0.5)),
		},
		Fills: map[uuid.UUID]float64{
			partial: 200,
			full:    500,
		},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 1},
		Acquired:      1000,
		Closed:        700,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)

	// The fully filled order drops out; the partial one carries its unfilled
	// remainder, which also matches the remaining budget.
	require.Len(t, set.Orders, 1)
	assert.Equal(t, partial, set.Orders[0].ID)
	assert.InDelta(t, 300, set.Orders[0].Notional, 1e-9)
}

func TestRecomputeClosedShrinksBudget(t *testing.T) {
	id := uuid.New()

	set, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", stopOrder(id, 95, 1.0)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 1},
		Acquired:      1000,
		Closed:        400,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)

	require.Len(t, set.Orders, 1)
	assert.InDelta(t, 600, set.Orders[0].Notional, 1e-9)
}

func TestRecomputeDeterministicAcrossCalls(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	in := RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"beta":  momentumBatch("beta", stopOrder(b, 95, 0.8)),
			"alpha": momentumBatch("alpha", stopOrder(a, 95, 0.8)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 2},
		Acquired:      1000,
		Side:          domain.SideBuy,
	}

	first, err := Recompute(in)
	require.NoError(t, err)
	second, err := Recompute(in)
	require.NoError(t, err)

	first.GeneratedAt = second.GeneratedAt
	assert.Equal(t, first, second)

	// Equal price: producer name breaks the tie, so alpha is served first.
	require.Len(t, first.Orders, 2)
	assert.Equal(t, "alpha", first.Orders[0].Producer)
	assert.Equal(t, "beta", first.Orders[1].Producer)
}

func TestRecomputeClosedAboveAcquiredIsFault(t *testing.T) {
	_, err := Recompute(RecomputeInput{
		Batches:       map[string]domain.OrderBatch{},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{},
		Acquired:      100,
		Closed:        150,
		Side:          domain.SideBuy,
	})
	require.ErrorIs(t, err, domain.ErrBudgetViolated)
}

func TestRecomputeUnknownSubtypeIsFault(t *testing.T) {
	_, err := Recompute(RecomputeInput{
		Batches: map[string]domain.OrderBatch{
			"p": momentumBatch("p", stopOrder(uuid.New(), 95, 1.0)),
		},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{},
		Acquired:      100,
		Side:          domain.SideBuy,
	})
	require.ErrorIs(t, err, domain.ErrBudgetViolated)
}

func TestRecomputeEmptyInputs(t *testing.T) {
	set, err := Recompute(RecomputeInput{
		Batches:       map[string]domain.OrderBatch{},
		Fills:         map[uuid.UUID]float64{},
		SubtypeCounts: map[domain.ProtocolType]int{},
		Acquired:      1000,
		Side:          domain.SideBuy,
	})
	require.NoError(t, err)
	assert.Empty(t, set.Orders)
	assert.Zero(t, set.TotalNotional())
}
