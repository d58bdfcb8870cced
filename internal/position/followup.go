package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/protocol"
)

const (
	// batchBuffer decouples protocol emission from reconciliation; batches are
	// replacement snapshots, so backpressure here only delays, never corrupts.
	batchBuffer = 16

	// closeEpsilon absorbs float accumulation error when comparing closed
	// notional against acquired notional (quote currency, USDT).
	closeEpsilon = 1e-6
)

// FollowupState is the observable phase of a followup loop.
type FollowupState int32

const (
	StateAttaching FollowupState = iota
	StateRunning
	StateDraining
	StateClosed
)

func (s FollowupState) String() string {
	switch s {
	case StateAttaching:
		return "attaching"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// FollowupConfig carries the dependencies of a followup loop. Protocols,
// Publisher and Fills are required; the journal and the producer-down hook
// are optional observers.
type FollowupConfig struct {
	Protocols []protocol.FollowupProtocol
	Publisher domain.TargetPublisher

	// Fills is the cumulative-fill feed from the execution layer. The loop
	// treats feed closure as a source loss, not an error.
	Fills <-chan domain.Fill

	// FillJournal, when set, persists each observed fill under PositionID.
	FillJournal domain.FillJournal
	PositionID  string

	// OnProducerDown is invoked from the event loop whenever a protocol's
	// Attach returns; err is nil for a voluntary finish.
	OnProducerDown func(producer string, err error)

	Logger *slog.Logger
}

// Followup drives the post-acquisition phase: it attaches every configured
// protocol, folds their batches and the fill feed through the reconciliation
// engine, and publishes each resulting target-order set.
//
// All state lives in the single event-loop goroutine; nothing here needs a
// lock except the state word exposed for observation.
type Followup struct {
	cfg   FollowupConfig
	log   *slog.Logger
	state atomic.Int32
}

// NewFollowup validates cfg and builds the loop.
func NewFollowup(cfg FollowupConfig) (*Followup, error) {
	if len(cfg.Protocols) == 0 {
		return nil, fmt.Errorf("position: followup: %w", domain.ErrNoProtocols)
	}
	if cfg.Publisher == nil {
		return nil, errors.New("position: followup: nil publisher")
	}
	if cfg.Fills == nil {
		return nil, errors.New("position: followup: nil fill feed")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Followup{
		cfg: cfg,
		log: cfg.Logger.With(slog.String("component", "followup")),
	}, nil
}

// State reports the loop's current phase.
func (f *Followup) State() FollowupState {
	return FollowupState(f.state.Load())
}

// producerExit is delivered to the event loop when a protocol's Attach
// returns for any reason other than context cancellation.
type producerExit struct {
	producer string
	err      error
}

// Run executes the followup loop over an acquired position and blocks until
// the position is closed, every event source is gone, or the context is
// cancelled.
//
// Budget-sharing counts are captured once here, before any protocol attaches,
// and never revised: a producer that disconnects mid-run is frozen — its last
// batch stays in force and its share is not redistributed. The loop exits
// clean when closed notional reaches acquired notional; it exits degraded
// (Clean=false) when all protocol queues and the fill feed have closed while
// notional remains.
func (f *Followup) Run(ctx context.Context, acq domain.PositionAcquisition) (domain.FollowupReport, error) {
	report := domain.FollowupReport{Acquisition: acq}

	f.state.Store(int32(StateAttaching))
	counts := protocol.CountSubtypes(f.cfg.Protocols)

	for _, p := range f.cfg.Protocols {
		if err := p.Init(ctx, acq.Spec); err != nil {
			return report, fmt.Errorf("position: followup: init %s: %w", p.ID(), err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	batches := make(chan domain.OrderBatch, batchBuffer)
	exits := make(chan producerExit, len(f.cfg.Protocols))

	var wg sync.WaitGroup
	for _, p := range f.cfg.Protocols {
		wg.Add(1)
		go func(p protocol.FollowupProtocol) {
			defer wg.Done()
			err := p.Attach(runCtx, batches, acq.Spec)
			if errors.Is(err, context.Canceled) {
				return
			}
			exits <- producerExit{producer: p.ID(), err: err}
		}(p)
	}
	go func() {
		wg.Wait()
		close(batches)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	f.log.Info("followup running",
		slog.String("symbol", acq.Symbol),
		slog.Int("protocols", len(f.cfg.Protocols)),
		slog.Float64("acquired_notional", acq.AcquiredNotional),
	)
	f.state.Store(int32(StateRunning))

	var (
		latest    = make(map[string]domain.OrderBatch)
		ledger    = make(map[uuid.UUID]float64)
		closed    float64
		fillsCh   = f.cfg.Fills
		batchesCh <-chan domain.OrderBatch = batches
		live                               = len(f.cfg.Protocols)
	)

	handleExit := func(exit producerExit) {
		live--
		if exit.err != nil {
			f.log.Warn("producer disconnected, freezing its last batch",
				slog.String("producer", exit.producer),
				slog.Int("live", live),
				slog.String("error", exit.err.Error()),
			)
		} else {
			f.log.Info("producer finished",
				slog.String("producer", exit.producer),
				slog.Int("live", live),
			)
		}
		if f.cfg.OnProducerDown != nil {
			f.cfg.OnProducerDown(exit.producer, exit.err)
		}
	}
	// Exit events are buffered and sent before the batch channel closes, so a
	// drain at termination observes every disconnect that already happened.
	drainExits := func() {
		for {
			select {
			case exit := <-exits:
				handleExit(exit)
			default:
				return
			}
		}
	}

	for {
		if closed+closeEpsilon >= acq.AcquiredNotional {
			drainExits()
			report.ClosedNotional = closed
			report.Clean = true
			report.FinishedAt = time.Now().UTC()
			f.state.Store(int32(StateClosed))
			f.log.Info("position closed", slog.Float64("closed_notional", closed))
			return report, nil
		}
		if batchesCh == nil && fillsCh == nil {
			drainExits()
			report.ClosedNotional = closed
			report.FinishedAt = time.Now().UTC()
			f.state.Store(int32(StateClosed))
			f.log.Warn("all event sources gone with open notional remaining",
				slog.Float64("closed_notional", closed),
				slog.Float64("acquired_notional", acq.AcquiredNotional),
			)
			return report, nil
		}

		select {
		case <-ctx.Done():
			report.ClosedNotional = closed
			report.FinishedAt = time.Now().UTC()
			return report, ctx.Err()

		case exit := <-exits:
			handleExit(exit)

		case b, ok := <-batchesCh:
			if !ok {
				batchesCh = nil
				if fillsCh != nil {
					f.state.Store(int32(StateDraining))
					f.log.Warn("every producer gone, draining on fills only")
				}
				continue
			}
			latest[b.ProducerID] = b
			set, err := f.recompute(latest, ledger, counts, acq, closed)
			if err != nil {
				report.ClosedNotional = closed
				report.FinishedAt = time.Now().UTC()
				return report, err
			}
			f.publish(set)

		case fill, ok := <-fillsCh:
			if !ok {
				fillsCh = nil
				f.log.Warn("fill feed closed")
				continue
			}
			ledger[fill.OrderID] = fill.FilledNotional
			closed = f.closedNotional(ledger, acq.AcquiredNotional)
			f.journalFill(ctx, fill)

			set, err := f.recompute(latest, ledger, counts, acq, closed)
			if err != nil {
				report.ClosedNotional = closed
				report.FinishedAt = time.Now().UTC()
				return report, err
			}
			f.publish(set)
		}
	}
}

func (f *Followup) recompute(
	latest map[string]domain.OrderBatch,
	ledger map[uuid.UUID]float64,
	counts map[domain.ProtocolType]int,
	acq domain.PositionAcquisition,
	closed float64,
) (domain.TargetOrderSet, error) {
	set, err := Recompute(RecomputeInput{
		Batches:       latest,
		Fills:         ledger,
		SubtypeCounts: counts,
		Acquired:      acq.AcquiredNotional,
		Closed:        closed,
		Side:          acq.Spec.Side,
	})
	if err != nil {
		return domain.TargetOrderSet{}, fmt.Errorf("position: followup: %w", err)
	}
	return set, nil
}

// publish hands the set to the execution boundary. Publication failure is the
// boundary's problem to recover from; the loop logs and moves on, and the
// next event re-publishes a fresh set anyway.
func (f *Followup) publish(set domain.TargetOrderSet) {
	if err := f.cfg.Publisher.PublishTargetOrders(set); err != nil {
		f.log.Error("target set publication failed",
			slog.Int("orders", len(set.Orders)),
			slog.String("error", err.Error()),
		)
		return
	}
	f.log.Debug("target set published",
		slog.Int("orders", len(set.Orders)),
		slog.Float64("total_notional", set.TotalNotional()),
	)
}

// closedNotional sums the cumulative ledger. The sum can only exceed acquired
// through execution-layer over-reporting; clamp and complain rather than feed
// a negative budget into the reconciler.
func (f *Followup) closedNotional(ledger map[uuid.UUID]float64, acquired float64) float64 {
	var sum float64
	for _, n := range ledger {
		sum += n
	}
	if sum > acquired {
		f.log.Error("fill ledger exceeds acquired notional, clamping",
			slog.Float64("ledger_sum", sum),
			slog.Float64("acquired_notional", acquired),
		)
		return acquired
	}
	return sum
}

func (f *Followup) journalFill(ctx context.Context, fill domain.Fill) {
	if f.cfg.FillJournal == nil {
		return
	}
	if err := f.cfg.FillJournal.Record(ctx, f.cfg.PositionID, fill); err != nil {
		f.log.Warn("fill journal write failed",
			slog.String("order_id", fill.OrderID.String()),
			slog.String("error", err.Error()),
		)
	}
}
