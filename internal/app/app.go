// Package app drives one position lifecycle end to end: it wires
// dependencies, sizes the position from the account balance, acquires it,
// and runs the followup loop until the position is closed.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/quantessence/discretionary-engine/internal/config"
	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/position"
	"github.com/quantessence/discretionary-engine/internal/protocol"
)

// PositionRequest is the CLI's description of the position to open. Size is
// a signed fraction of the total account balance: 0.1 opens a long worth a
// tenth of the balance, -0.1 the corresponding short.
type PositionRequest struct {
	Coin      string
	Size      float64
	Followups []string
}

// App owns one position lifecycle run.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run opens the requested position and blocks until its followup finishes or
// the context is cancelled.
func (a *App) Run(ctx context.Context, req PositionRequest) error {
	if req.Coin == "" {
		return fmt.Errorf("app: coin must be set")
	}
	if req.Size == 0 {
		return fmt.Errorf("app: %w", domain.ErrZeroSize)
	}
	if math.Abs(req.Size) > 1 {
		return fmt.Errorf("app: size %g exceeds the full account balance", req.Size)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	followups := req.Followups
	if len(followups) == 0 {
		followups = a.cfg.Position.DefaultFollowups
	}
	protocols, err := protocol.ParseAll(followups, deps.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	spec, err := a.buildSpec(ctx, deps, req)
	if err != nil {
		return err
	}
	a.logger.Info("position spec built",
		slog.String("asset", spec.Asset),
		slog.String("side", string(spec.Side)),
		slog.Float64("target_notional", spec.TargetNotional),
	)

	acquirer := position.NewAcquirer(deps.Exchange, a.cfg.Position.PollInterval.Duration, a.logger)
	acq, err := acquirer.Acquire(ctx, spec)
	if err != nil {
		deps.Notifier.EngineError(ctx, err)
		return fmt.Errorf("app: %w", err)
	}

	positionID := uuid.New().String()
	if deps.PositionJournal != nil {
		if err := deps.PositionJournal.Create(ctx, positionID, acq); err != nil {
			a.logger.Warn("position journal write failed", slog.String("error", err.Error()))
		}
	}
	deps.Notifier.PositionAcquired(ctx, acq)

	fills, err := deps.FillFeed.Subscribe(ctx)
	if err != nil {
		deps.Notifier.EngineError(ctx, err)
		return fmt.Errorf("app: %w", err)
	}

	followup, err := position.NewFollowup(position.FollowupConfig{
		Protocols:   protocols,
		Publisher:   deps.Publisher,
		Fills:       fills,
		FillJournal: deps.FillJournal,
		PositionID:  positionID,
		Logger:      a.logger,
		OnProducerDown: func(producer string, err error) {
			deps.Notifier.ProtocolDisconnected(ctx, producer, err)
		},
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	report, err := followup.Run(ctx, acq)
	if err != nil {
		deps.Notifier.EngineError(ctx, err)
		return fmt.Errorf("app: %w", err)
	}

	a.finish(ctx, deps, positionID, report)
	return nil
}

// buildSpec converts the signed balance fraction into an absolute position
// spec against the current account balance.
func (a *App) buildSpec(ctx context.Context, deps *Dependencies, req PositionRequest) (domain.PositionSpec, error) {
	balance, err := deps.Exchange.TotalBalance(ctx)
	if err != nil {
		return domain.PositionSpec{}, fmt.Errorf("app: %w", err)
	}

	side := domain.SideBuy
	if req.Size < 0 {
		side = domain.SideSell
	}
	return domain.PositionSpec{
		Asset:          req.Coin,
		Side:           side,
		TargetNotional: math.Abs(req.Size) * balance,
	}, nil
}

// finish records and reports the close. Journal and archive failures are
// logged, not fatal: the position itself is already done.
func (a *App) finish(ctx context.Context, deps *Dependencies, positionID string, report domain.FollowupReport) {
	if deps.PositionJournal != nil {
		if err := deps.PositionJournal.RecordClose(ctx, positionID, report); err != nil {
			a.logger.Warn("close journal write failed", slog.String("error", err.Error()))
		}
	}
	if deps.Archiver != nil {
		if err := deps.Archiver.Archive(ctx, positionID, report); err != nil {
			a.logger.Warn("close report archive failed", slog.String("error", err.Error()))
		}
	}
	deps.Notifier.PositionClosed(ctx, report)

	a.logger.Info("position lifecycle finished",
		slog.String("position_id", positionID),
		slog.Bool("clean", report.Clean),
		slog.Float64("closed_notional", report.ClosedNotional),
	)
}
