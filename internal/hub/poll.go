package hub

import (
	"context"
	"time"

	"scalp-engine/internal/metrics"
	"scalp-engine/internal/universe"
	"scalp-engine/internal/venue"
	"scalp-engine/pkg/types"
)

// fundingOILoop walks each venue's observed symbols on a fixed cadence,
// fetching funding and open interest over REST and re-emitting the unified
// tick so the changes propagate. Per cycle at most PollWindow symbols per
// venue are touched; the window rotates so a large universe is still fully
// covered over a few cycles.
func (h *Hub) fundingOILoop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range h.adapters {
				h.pollVenue(ctx, a)
			}
		}
	}
}

func (h *Hub) pollVenue(ctx context.Context, a venue.Adapter) {
	v := a.Name()
	window := h.nextWindow(v)

	for _, local := range window {
		if ctx.Err() != nil {
			return
		}

		row, err := a.FetchFundingOI(ctx, local)
		if err != nil {
			if venue.IsClientError(err) {
				h.addSkip(v, local)
				h.logger.Warn("symbol rejected by venue, skipping",
					"venue", v, "symbol", local, "error", err)
			} else {
				h.logger.Debug("funding/oi poll failed",
					"venue", v, "symbol", local, "error", err)
			}
			continue
		}

		canonical := universe.Canonical(v, local)
		if !h.uni.Contains(canonical) {
			continue
		}

		now := h.now()
		h.mu.Lock()
		key := venueSym{v, canonical}
		if row.FundingRate != nil {
			h.funding[key] = fundingPoint{ts: now, rate: *row.FundingRate}
		}
		if row.OpenInterest != nil {
			points := append(h.oi[key], oiPoint{ts: now, value: *row.OpenInterest})
			if len(points) > oiRingCap {
				points = points[len(points)-oiRingCap:]
			}
			h.oi[key] = points
		}
		tick, emit := h.buildUnifiedLocked(canonical)
		h.mu.Unlock()

		if emit {
			h.enqueue(tick)
		}
	}
}

// nextWindow returns up to PollWindow observed, non-skipped symbols for the
// venue, advancing the rotating offset.
func (h *Hub) nextWindow(v types.Venue) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	observed := h.observed[v]
	if len(observed) == 0 {
		return nil
	}
	skip := h.skip[v]

	window := make([]string, 0, h.cfg.PollWindow)
	offset := h.pollOffset[v]
	for i := 0; i < len(observed) && len(window) < h.cfg.PollWindow; i++ {
		local := observed[(offset+i)%len(observed)]
		if _, skipped := skip[local]; skipped {
			continue
		}
		window = append(window, local)
	}
	h.pollOffset[v] = (offset + len(window)) % len(observed)
	return window
}

func (h *Hub) addSkip(v types.Venue, local string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.skip[v]
	if !ok {
		set = make(map[string]struct{})
		h.skip[v] = set
	}
	set[local] = struct{}{}
}

// stalenessLoop warns once a minute about streams that have gone silent.
func (h *Hub) stalenessLoop(ctx context.Context) {
	ticker := time.NewTicker(stalenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range h.adapters {
				stale := a.StalenessCheck(h.cfg.StaleAfter)
				metrics.StaleStreams.WithLabelValues(string(a.Name())).Set(float64(len(stale)))
				for key, age := range stale {
					h.logger.Warn("stream stale", "venue", a.Name(), "stream", key, "age", age)
				}
			}
		}
	}
}
