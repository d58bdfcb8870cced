// Command dengine opens a discretionary futures position and manages it with
// the configured followup protocols until it is closed.
//
// Usage:
//
//	dengine new --coin ETH --size -0.1 -f ts-p0.5 [-f ...] [--config config.toml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quantessence/discretionary-engine/internal/app"
	"github.com/quantessence/discretionary-engine/internal/config"
	"github.com/quantessence/discretionary-engine/internal/protocol"
)

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "new":
		runNew(os.Args[2:])
	case "protocols":
		fmt.Println(strings.Join(protocol.Names(), "\n"))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `dengine manages discretionary futures positions.

Commands:
  new        open a position and run its followup protocols
  protocols  list available followup protocol names

Flags for new:
  --coin     asset to trade, e.g. ETH (required)
  --size     position size as a signed fraction of the account balance;
             negative opens a short (required)
  -f         followup protocol spec, e.g. ts-p0.5 (repeatable)
  --config   path to configuration file (default config.toml)
`)
}

func runNew(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	coin := fs.String("coin", "", "asset to trade, e.g. ETH")
	size := fs.Float64("size", 0, "signed fraction of the account balance")
	var followups stringList
	fs.Var(&followups, "f", "followup protocol spec (repeatable)")
	_ = fs.Parse(args)

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("discretionary engine starting",
		slog.String("coin", *coin),
		slog.Float64("size", *size),
		slog.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	err = application.Run(ctx, app.PositionRequest{
		Coin:      *coin,
		Size:      *size,
		Followups: followups,
	})
	if err != nil {
		// context.Canceled is expected on operator-initiated shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down before the position closed; live orders remain on the exchange")
			return
		}
		logger.Error("engine exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger.Info("discretionary engine stopped")
}
