// Package engine is the orchestrator: the single consumer of the unified
// tick stream. Per tick it journals the tick, drives the open position's
// trailing stop, derives and scores features, and runs the entry gates.
// Running everything on one goroutine keeps the pipeline free of locks and
// the journal single-writer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"scalp-engine/internal/config"
	"scalp-engine/internal/feature"
	"scalp-engine/internal/hub"
	"scalp-engine/internal/journal"
	"scalp-engine/internal/metrics"
	"scalp-engine/internal/notify"
	"scalp-engine/internal/scalp"
	"scalp-engine/internal/universe"
	"scalp-engine/pkg/types"
)

const pruneInterval = 24 * time.Hour

// Engine wires the hub, pipeline, decision core, journal and notifier.
type Engine struct {
	cfg      *config.Config
	uni      *universe.Universe
	hub      *hub.Hub
	journal  *journal.Journal
	pipeline *feature.Pipeline
	btc      *feature.BTCRegime
	trigger  *scalp.Trigger
	exit     scalp.ExitParams
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func New(
	cfg *config.Config,
	uni *universe.Universe,
	h *hub.Hub,
	j *journal.Journal,
	btc *feature.BTCRegime,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		uni:      uni,
		hub:      h,
		journal:  j,
		pipeline: feature.NewPipeline(btc),
		btc:      btc,
		trigger: scalp.NewTrigger(
			cfg.Trigger.MinConditions,
			cfg.Trigger.UnifiedRelaxed,
			cfg.Engine.EntryCooldown,
			cfg.Engine.MaxDailySignals,
		),
		exit: scalp.ExitParams{
			ActivatePct: cfg.Trail.ActivatePct,
			GivebackPct: cfg.Trail.GivebackPct,
			HardStopPct: cfg.Trail.HardStopPct,
		},
		notifier: notifier,
		logger:   logger.With("component", "engine"),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	go func() {
		if err := e.hub.Run(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("hub stopped", "error", err)
		}
	}()
	go e.btcPollLoop(ctx)
	go e.pruneLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-e.hub.Ticks():
			e.handleTick(ctx, &tick)
		}
	}
}

func (e *Engine) btcPollLoop(ctx context.Context) {
	poll := func() {
		if err := e.btc.Poll(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("btc regime poll failed", "error", err)
		}
	}
	poll()

	ticker := time.NewTicker(e.cfg.Engine.BTCPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func (e *Engine) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.journal.PruneOld(e.cfg.Journal.RetentionDays); err != nil {
				e.logger.Warn("prune failed", "error", err)
			} else {
				e.logger.Info("journal pruned", "retention_days", e.cfg.Journal.RetentionDays)
			}
		}
	}
}

// handleTick is the per-tick pipeline. Exposed through Run only; tests call
// it directly with synthetic ticks.
func (e *Engine) handleTick(ctx context.Context, tick *types.UnifiedTick) {
	if err := e.journal.StoreUnified(*tick); err != nil {
		e.logger.Warn("store unified failed", "symbol", tick.Symbol, "error", err)
	}

	if tick.Price != nil && *tick.Price > 0 {
		e.checkExit(ctx, tick.Symbol, *tick.Price)
	}

	f := e.pipeline.Update(tick)
	f.Score = scalp.Score(f)

	if blob, err := json.Marshal(f); err == nil {
		e.journal.StoreFeatures(tick.Symbol, string(blob), tick.Ts)
	}
	e.journal.StoreRank(tick.Symbol, f.Score, tick.Ts)

	if tick.Price == nil || *tick.Price <= 0 {
		return
	}
	e.checkEntry(ctx, tick.Symbol, *tick.Price, f)
}

func (e *Engine) checkExit(ctx context.Context, sym string, price float64) {
	pos, err := e.journal.GetOpenPosition(sym)
	if err != nil {
		e.logger.Warn("open position lookup failed", "symbol", sym, "error", err)
		return
	}
	if pos == nil {
		return
	}

	d := scalp.TrailingForShort(pos.EntryPrice, price, pos.BestLow, e.exit)
	if d.NewBestLow < pos.BestLow {
		if err := e.journal.UpdateBestLow(sym, d.NewBestLow); err != nil {
			e.logger.Warn("best_low update failed", "symbol", sym, "error", err)
		}
	}
	if !d.Exit {
		return
	}

	if err := e.journal.ClosePosition(sym, price, d.Reason, e.now()); err != nil {
		e.logger.Warn("close position failed", "symbol", sym, "error", err)
		return
	}
	// Exit rows reuse the score column for the realized PnL percent.
	e.journal.StoreSignal(types.Signal{
		Ts:         e.now(),
		Symbol:     sym,
		Score:      d.PnlPct,
		EntryPrice: price,
		Reason:     "exit_" + d.Reason,
		Type:       types.SignalExit,
	})
	metrics.Exits.WithLabelValues(d.Reason).Inc()
	metrics.Signals.WithLabelValues(string(types.SignalExit)).Inc()

	e.logger.Info("position closed",
		"symbol", sym,
		"reason", d.Reason,
		"exit_price", price,
		"pnl_pct", d.PnlPct,
		"peak_pnl_pct", d.PeakPnlPct,
	)
	e.notifier.NotifyExit(ctx, sym, d.Reason, price, d.PnlPct)
}

func (e *Engine) checkEntry(ctx context.Context, sym string, price float64, f *types.FeatureVector) {
	pass, failed := e.trigger.Evaluate(f)
	if !pass {
		if f.Score >= e.cfg.Engine.ScoreMin {
			e.logger.Info("trigger miss on scoring symbol",
				"symbol", sym,
				"score", f.Score,
				"failed_conditions", strings.Join(failed, ","),
			)
		}
		return
	}
	if f.Score < e.cfg.Engine.ScoreMin {
		return
	}
	if price > e.cfg.Engine.MaxPrice {
		return
	}
	if !e.uni.Contains(sym) {
		return
	}

	pos, err := e.journal.GetOpenPosition(sym)
	if err != nil || pos != nil {
		return
	}
	if e.trigger.OnCooldown(sym) {
		return
	}
	if seen, err := e.journal.SeenRecentSymbolSignal(sym, e.cfg.Engine.EntryCooldown, types.SignalEntry); err != nil || seen {
		return
	}
	hash := scalp.DedupHash(sym, price, f.Score, f)
	if seen, err := e.journal.SeenRecentSignal(sym, hash, e.cfg.Engine.DedupWindow); err != nil || seen {
		return
	}
	if !e.trigger.DailyBudgetLeft() {
		e.logger.Info("daily signal budget exhausted", "symbol", sym)
		return
	}

	now := e.now()
	if err := e.journal.OpenPosition(sym, price, now); err != nil {
		e.logger.Warn("open position failed", "symbol", sym, "error", err)
		return
	}
	sig := types.Signal{
		Ts:         now,
		Symbol:     sym,
		Score:      f.Score,
		EntryPrice: price,
		Reason:     entryReason(f),
		DedupHash:  hash,
		Type:       types.SignalEntry,
	}
	if err := e.journal.StoreSignal(sig); err != nil {
		e.logger.Warn("store signal failed", "symbol", sym, "error", err)
	}
	e.trigger.MarkFired(sym)
	metrics.Signals.WithLabelValues(string(types.SignalEntry)).Inc()

	e.logger.Info("short signal",
		"symbol", sym,
		"score", f.Score,
		"entry_price", price,
		"reason", sig.Reason,
	)
	e.notifier.NotifySignal(ctx, sig)
}

// entryReason summarizes the setup for the signal row and the alert.
func entryReason(f *types.FeatureVector) string {
	return fmt.Sprintf(
		"ask_dom %.2f, gap %.4f, sweep %.2f, oi_div %.2f, funding %.3f, momentum %.2f, btc_align %.2f",
		f.AskDom, f.GapAbove, f.SweepRejection, f.OIDivergence, f.FundingImpulse, f.ShortMomentum, f.BTCAlignment,
	)
}
