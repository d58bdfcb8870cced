package position

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// RecomputeInput is the full state the reconciliation engine maps into a
// TargetOrderSet. All maps are read-only snapshots owned by the followup
// loop; Recompute never mutates them and holds no state of its own, so the
// same input always yields the same output.
type RecomputeInput struct {
	// Batches holds the latest batch per producer, including frozen ones.
	Batches map[string]domain.OrderBatch

	// Fills is the cumulative fill ledger keyed by conceptual-order id.
	Fills map[uuid.UUID]float64

	// SubtypeCounts is the number of attached instances per budget-sharing
	// group, captured once at attach time.
	SubtypeCounts map[domain.ProtocolType]int

	Acquired float64
	Closed   float64
	Side     domain.Side
}

// Recompute derives the canonical target-order set from every producer's
// latest batch and the fill ledger.
//
// The algorithm: resolve each producer's fractional orders against its
// subtype share minus recorded fills, pool the survivors by kind, then spend
// budget in fixed priority — market orders first against all three trackers,
// then stops against the stop tracker, then limits against the limit
// tracker, each pool sorted most-price-favorable-first so clipping always
// sacrifices the least favorable tail. A tracker observed below zero means
// market-order accounting was broken earlier; that is a logic fault and
// aborts the computation rather than truncating further.
func Recompute(in RecomputeInput) (domain.TargetOrderSet, error) {
	remainingFull := in.Acquired - in.Closed
	if remainingFull < 0 {
		return domain.TargetOrderSet{}, fmt.Errorf("position: closed %.8g exceeds acquired %.8g: %w",
			in.Closed, in.Acquired, domain.ErrBudgetViolated)
	}

	market, stop, limit, err := unroll(in)
	if err != nil {
		return domain.TargetOrderSet{}, err
	}

	// Deterministic processing order within each pool, independent of map
	// iteration: price favorability first, producer/id as tie-break.
	sortByPreference(market, in.Side)
	sortByPreference(stop, in.Side)
	sortByPreference(limit, in.Side)

	remainingStop := remainingFull
	remainingLimit := remainingFull

	set := domain.TargetOrderSet{GeneratedAt: time.Now().UTC()}

	// Market orders run first, unconditionally: a filled market order changes
	// realized exposure, so its notional comes out of every tracker.
	for _, o := range market {
		n := o.Notional
		if n > remainingFull {
			n = remainingFull
		}
		remainingFull -= n
		remainingStop -= n
		remainingLimit -= n
		if remainingStop < 0 || remainingLimit < 0 {
			return domain.TargetOrderSet{}, fmt.Errorf("position: market pool: %w", domain.ErrBudgetViolated)
		}
		set.MarketNotional += n
		set.Orders = append(set.Orders, o.WithNotional(n))
	}

	for _, o := range stop {
		if remainingStop < 0 {
			return domain.TargetOrderSet{}, fmt.Errorf("position: stop pool: %w", domain.ErrBudgetViolated)
		}
		n := o.Notional
		if n > remainingStop {
			n = remainingStop
		}
		remainingStop -= n
		set.StopNotional += n
		set.Orders = append(set.Orders, o.WithNotional(n))
	}

	for _, o := range limit {
		if remainingLimit < 0 {
			return domain.TargetOrderSet{}, fmt.Errorf("position: limit pool: %w", domain.ErrBudgetViolated)
		}
		n := o.Notional
		if n > remainingLimit {
			n = remainingLimit
		}
		remainingLimit -= n
		set.LimitNotional += n
		set.Orders = append(set.Orders, o.WithNotional(n))
	}

	return set, nil
}

// unroll resolves every producer's fractional orders into notional-sized
// conceptual orders, netting out recorded fills, and partitions them by kind.
// A fully filled sub-order contributes nothing on this pass, though its fill
// stays in the ledger.
func unroll(in RecomputeInput) (market, stop, limit []domain.ConceptualOrder, err error) {
	producers := make([]string, 0, len(in.Batches))
	for id := range in.Batches {
		producers = append(producers, id)
	}
	sort.Strings(producers)

	for _, producer := range producers {
		batch := in.Batches[producer]
		count := in.SubtypeCounts[batch.Subtype]
		if count <= 0 {
			return nil, nil, nil, fmt.Errorf("position: producer %s has subtype %q with no attached instances: %w",
				producer, batch.Subtype, domain.ErrBudgetViolated)
		}
		share := in.Acquired / float64(count)

		for _, po := range batch.Orders {
			notional := po.Fraction*share - in.Fills[po.ID]
			if notional <= 0 {
				continue
			}
			o := domain.ConceptualOrder{
				ID:       po.ID,
				Producer: producer,
				Kind:     po.Kind,
				Symbol:   po.Symbol,
				Side:     po.Side,
				Price:    po.Price,
				Notional: notional,
			}
			switch po.Kind {
			case domain.OrderKindMarket:
				market = append(market, o)
			case domain.OrderKindStopMarket:
				stop = append(stop, o)
			case domain.OrderKindLimit:
				limit = append(limit, o)
			default:
				return nil, nil, nil, fmt.Errorf("position: producer %s emitted unknown order kind %q", producer, po.Kind)
			}
		}
	}
	return market, stop, limit, nil
}

// sortByPreference orders a pool most-price-favorable-first for the position
// side, so budget clipping keeps near orders whole and sacrifices far ones.
// For a Buy position the nearest protective stop is the highest-priced and
// the nearest take-profit the lowest-priced; a Sell position inverts both.
// Producer and order id break price ties so output never depends on input
// arrival order.
func sortByPreference(pool []domain.ConceptualOrder, side domain.Side) {
	sort.Slice(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Price != b.Price {
			descending := (side == domain.SideBuy) == (a.Kind == domain.OrderKindStopMarket)
			if descending {
				return a.Price > b.Price
			}
			return a.Price < b.Price
		}
		if a.Producer != b.Producer {
			return a.Producer < b.Producer
		}
		return a.ID.String() < b.ID.String()
	})
}
