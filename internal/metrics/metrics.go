// Package metrics exposes the engine's Prometheus instrumentation and the
// optional HTTP endpoint that serves it.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VenueEvents counts normalized events received per venue and kind.
	VenueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalp_venue_events_total",
		Help: "Normalized venue events received, by venue and kind.",
	}, []string{"venue", "kind"})

	// UnifiedEmitted counts unified ticks enqueued for the engine.
	UnifiedEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalp_unified_ticks_total",
		Help: "Unified ticks emitted by the hub.",
	})

	// QueueDrops counts unified ticks dropped on queue overflow.
	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalp_queue_drops_total",
		Help: "Unified ticks dropped because the queue was full.",
	})

	// QueueDepth is the current unified queue depth.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalp_queue_depth",
		Help: "Current unified queue depth.",
	})

	// EventsDropped counts venue events rejected at the validation boundary.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalp_events_dropped_total",
		Help: "Venue events dropped at validation, by reason.",
	}, []string{"reason"})

	// Signals counts emitted signals by type.
	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalp_signals_total",
		Help: "Signals emitted, by type.",
	}, []string{"type"})

	// Exits counts closed positions by reason.
	Exits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalp_exits_total",
		Help: "Positions closed, by exit reason.",
	}, []string{"reason"})

	// StaleStreams is the number of streams currently past the staleness
	// threshold.
	StaleStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scalp_stale_streams",
		Help: "Streams silent past the staleness threshold, by venue.",
	}, []string{"venue"})
)

// Serve runs the /metrics endpoint until ctx is cancelled. A blank addr
// disables it.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics endpoint failed", "error", err)
	}
}
