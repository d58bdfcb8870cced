package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantessence/discretionary-engine/internal/blob/s3"
	"github.com/quantessence/discretionary-engine/internal/cache/redis"
	"github.com/quantessence/discretionary-engine/internal/config"
	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/exchange"
	"github.com/quantessence/discretionary-engine/internal/exchange/binance"
	"github.com/quantessence/discretionary-engine/internal/notify"
	"github.com/quantessence/discretionary-engine/internal/store/postgres"
)

// Dependencies bundles everything a position lifecycle needs to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange exchange.Client

	// Journals are nil when postgres is disabled; journaling is observational
	// and the engine runs without it.
	PositionJournal domain.PositionJournal
	FillJournal     domain.FillJournal

	Publisher *redis.TargetPublisher
	FillFeed  *redis.FillFeed

	// Archiver is nil when s3 is disabled.
	Archiver *s3blob.ReportArchiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Binance futures ---
	deps.Exchange = binance.New(binance.Config{
		APIKey:    cfg.Binance.ApiKey,
		SecretKey: cfg.Binance.SecretKey,
		WsHost:    cfg.Binance.WsHost,
		Testnet:   cfg.Binance.Testnet,
	}, logger)

	// --- PostgreSQL journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		journal := postgres.NewJournalStore(pgClient.Pool())
		deps.PositionJournal = journal
		deps.FillJournal = journal
	}

	// --- Redis execution boundary ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Publisher = redis.NewTargetPublisher(redisClient, cfg.Redis.TargetChannel)
	deps.FillFeed = redis.NewFillFeed(redisClient, cfg.Redis.FillChannel, logger)

	// --- S3 close-report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewReportArchiver(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
