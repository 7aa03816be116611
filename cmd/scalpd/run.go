package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"scalp-engine/internal/config"
	"scalp-engine/internal/engine"
	"scalp-engine/internal/feature"
	"scalp-engine/internal/hub"
	"scalp-engine/internal/journal"
	"scalp-engine/internal/metrics"
	"scalp-engine/internal/notify"
	"scalp-engine/internal/universe"
	"scalp-engine/internal/venue"
	"scalp-engine/pkg/types"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the signal engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runEngine(cfgPath)
		},
	}
}

func runEngine(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging)

	uni, err := universe.Load(cfg.Symbols.File)
	if err != nil || uni.Len() == 0 {
		if err != nil {
			logger.Warn("symbols file unavailable, falling back to BTCUSDT", "error", err)
		} else {
			logger.Warn("symbols file empty, falling back to BTCUSDT")
		}
		uni = universe.FromSymbols("BTCUSDT")
	}
	logger.Info("universe loaded", "symbols", uni.Len())

	j, err := journal.Open(cfg.Journal.Path, uni)
	if err != nil {
		return err
	}
	defer j.Close()

	h := hub.New(hub.Config{
		QueueSize:    cfg.Hub.QueueSize,
		PollInterval: cfg.Hub.PollInterval,
		PollWindow:   cfg.Hub.PollWindow,
		StaleAfter:   cfg.Hub.StaleAfter,
	}, uni, j, logger)

	byVenue := uni.ByVenue()
	cb := h.Callbacks()
	h.Register(venue.NewBinance(byVenue[types.VenueBinance], cb, logger))
	h.Register(venue.NewBybit(byVenue[types.VenueBybit], cb, logger))
	h.Register(venue.NewMEXC(byVenue[types.VenueMEXC], cb, logger))
	h.Register(venue.NewLBank(byVenue[types.VenueLBank], cb, logger))

	btc := feature.NewBTCRegime(resty.New(), logger)
	notifier := notify.New(notify.Config{
		Token:          cfg.Telegram.Token,
		ChatID:         cfg.Telegram.ChatID,
		SignalCooldown: cfg.Telegram.SignalCooldown,
		ExitCooldown:   cfg.Telegram.ExitCooldown,
	}, logger)
	if !notifier.Enabled() {
		logger.Info("telegram notifications disabled")
	}

	eng := engine.New(cfg, uni, h, j, btc, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go metrics.Serve(ctx, cfg.Metrics.Addr, logger)

	logger.Info("scalp engine started",
		"symbols", uni.Len(),
		"score_min", cfg.Engine.ScoreMin,
		"max_price", cfg.Engine.MaxPrice,
		"journal", cfg.Journal.Path,
	)

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shut down")
	return nil
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
