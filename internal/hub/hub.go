// Package hub fans four venue event streams into one unified tick stream.
// It keeps per-venue metric caches, trade rings and funding/OI tables, and
// re-emits a cross-venue average for a symbol whenever any of its inputs
// change. The queue to the engine is bounded and lossy-newest-wins.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scalp-engine/internal/metrics"
	"scalp-engine/internal/universe"
	"scalp-engine/internal/venue"
	"scalp-engine/pkg/types"
)

const (
	metricFreshness    = 180 * time.Second
	fundingOIFreshness = 7200 * time.Second
	maxTsSkew          = 300 * time.Second

	tradeRingCap = 4000
	oiRingCap    = 2880

	stalenessInterval = time.Minute
)

// Config tunes the hub.
type Config struct {
	QueueSize    int
	PollInterval time.Duration
	PollWindow   int
	StaleAfter   time.Duration
}

// TickStore receives raw per-venue prints. Satisfied by *journal.Journal;
// nil disables raw tick persistence.
type TickStore interface {
	StoreTick(venue types.Venue, sym string, price float64, ts time.Time) error
}

type venueSym struct {
	venue types.Venue
	sym   string
}

// metric is the latest book/price state for one (venue, canonical symbol).
type metric struct {
	price    float64
	spread   float64
	bidTotal float64
	askTotal float64
	hasBook  bool
	ts       time.Time
}

type fundingPoint struct {
	ts   time.Time
	rate float64
}

type oiPoint struct {
	ts    time.Time
	value float64
}

// Hub is the fan-in point. Adapter callbacks run on adapter goroutines, so
// all state lives behind mu; the queue is the only hand-off to the engine.
type Hub struct {
	cfg   Config
	uni   *universe.Universe
	store TickStore

	adapters []venue.Adapter

	mu          sync.Mutex
	metricCache map[venueSym]*metric
	trades      map[venueSym]*tradeRing
	funding     map[venueSym]fundingPoint
	oi          map[venueSym][]oiPoint
	observed    map[types.Venue][]string
	observedSet map[types.Venue]map[string]struct{}
	skip        map[types.Venue]map[string]struct{}
	pollOffset  map[types.Venue]int

	queue  chan types.UnifiedTick
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, uni *universe.Universe, store TickStore, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:         cfg,
		uni:         uni,
		store:       store,
		metricCache: make(map[venueSym]*metric),
		trades:      make(map[venueSym]*tradeRing),
		funding:     make(map[venueSym]fundingPoint),
		oi:          make(map[venueSym][]oiPoint),
		observed:    make(map[types.Venue][]string),
		observedSet: make(map[types.Venue]map[string]struct{}),
		skip:        make(map[types.Venue]map[string]struct{}),
		pollOffset:  make(map[types.Venue]int),
		queue:       make(chan types.UnifiedTick, cfg.QueueSize),
		logger:      logger.With("component", "hub"),
		now:         time.Now,
	}
}

// Register adds an adapter the hub will run and poll.
func (h *Hub) Register(a venue.Adapter) {
	h.adapters = append(h.adapters, a)
}

// Ticks is the unified stream consumed by the engine.
func (h *Hub) Ticks() <-chan types.UnifiedTick { return h.queue }

// Callbacks routes normalized venue events into the hub.
func (h *Hub) Callbacks() venue.Callbacks {
	return venue.Callbacks{
		OnBook:  h.handleBook,
		OnTrade: h.handleTrade,
		OnMark:  h.handleMark,
	}
}

// Run starts the adapters and the polling and staleness loops, blocking
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, a := range h.adapters {
		wg.Add(1)
		go func(a venue.Adapter) {
			defer wg.Done()
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				h.logger.Warn("adapter stopped", "venue", a.Name(), "error", err)
			}
		}(a)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		h.fundingOILoop(ctx)
	}()
	go func() {
		defer wg.Done()
		h.stalenessLoop(ctx)
	}()

	<-ctx.Done()
	for _, a := range h.adapters {
		a.Close()
	}
	wg.Wait()
	return ctx.Err()
}

// validate applies the shared entry checks and returns the canonical symbol.
func (h *Hub) validate(v types.Venue, local string, ts time.Time) (string, bool) {
	canonical := universe.Canonical(v, local)
	if !h.uni.Contains(canonical) {
		metrics.EventsDropped.WithLabelValues("symbol").Inc()
		return "", false
	}
	d := h.now().Sub(ts)
	if d < 0 {
		d = -d
	}
	if d >= maxTsSkew {
		metrics.EventsDropped.WithLabelValues("timestamp").Inc()
		h.logger.Debug("event timestamp out of bounds", "venue", v, "symbol", local, "ts", ts)
		return "", false
	}
	return canonical, true
}

func (h *Hub) handleBook(e types.BookEvent) {
	canonical, ok := h.validate(e.Venue, e.Symbol, e.Ts)
	if !ok {
		return
	}
	metrics.VenueEvents.WithLabelValues(string(e.Venue), "book").Inc()

	var bidTotal, askTotal, bestBid, bestAsk float64
	for _, lv := range e.Bids {
		bidTotal += lv.Size
		if lv.Price > bestBid {
			bestBid = lv.Price
		}
	}
	for _, lv := range e.Asks {
		askTotal += lv.Size
		if bestAsk == 0 || lv.Price < bestAsk {
			bestAsk = lv.Price
		}
	}

	h.mu.Lock()
	h.markObservedLocked(e.Venue, e.Symbol)
	m := h.metricLocked(e.Venue, canonical)
	m.bidTotal = bidTotal
	m.askTotal = askTotal
	m.hasBook = true
	m.ts = e.Ts
	if bestAsk >= bestBid && bestBid > 0 {
		m.spread = bestAsk - bestBid
		m.price = (bestBid + bestAsk) / 2
	}
	tick, emit := h.buildUnifiedLocked(canonical)
	h.mu.Unlock()

	if emit {
		h.enqueue(tick)
	}
}

func (h *Hub) handleTrade(e types.TradeEvent) {
	canonical, ok := h.validate(e.Venue, e.Symbol, e.Ts)
	if !ok {
		return
	}
	metrics.VenueEvents.WithLabelValues(string(e.Venue), "trade").Inc()

	h.mu.Lock()
	h.markObservedLocked(e.Venue, e.Symbol)
	key := venueSym{e.Venue, canonical}
	ring, ok := h.trades[key]
	if !ok {
		ring = newTradeRing(tradeRingCap)
		h.trades[key] = ring
	}
	ring.push(e)
	if e.Price > 0 {
		m := h.metricLocked(e.Venue, canonical)
		m.price = e.Price
		m.ts = e.Ts
	}
	tick, emit := h.buildUnifiedLocked(canonical)
	h.mu.Unlock()

	if h.store != nil && e.Price > 0 {
		if err := h.store.StoreTick(e.Venue, canonical, e.Price, e.Ts); err != nil {
			h.logger.Warn("store tick failed", "error", err)
		}
	}
	if emit {
		h.enqueue(tick)
	}
}

func (h *Hub) handleMark(e types.MarkEvent) {
	canonical, ok := h.validate(e.Venue, e.Symbol, e.Ts)
	if !ok {
		return
	}
	metrics.VenueEvents.WithLabelValues(string(e.Venue), "mark").Inc()

	h.mu.Lock()
	h.markObservedLocked(e.Venue, e.Symbol)
	if e.Price > 0 {
		m := h.metricLocked(e.Venue, canonical)
		m.price = e.Price
		m.ts = e.Ts
	}
	tick, emit := h.buildUnifiedLocked(canonical)
	h.mu.Unlock()

	if h.store != nil && e.Price > 0 {
		if err := h.store.StoreTick(e.Venue, canonical, e.Price, e.Ts); err != nil {
			h.logger.Warn("store tick failed", "error", err)
		}
	}
	if emit {
		h.enqueue(tick)
	}
}

func (h *Hub) metricLocked(v types.Venue, canonical string) *metric {
	key := venueSym{v, canonical}
	m, ok := h.metricCache[key]
	if !ok {
		m = &metric{}
		h.metricCache[key] = m
	}
	return m
}

func (h *Hub) markObservedLocked(v types.Venue, local string) {
	set, ok := h.observedSet[v]
	if !ok {
		set = make(map[string]struct{})
		h.observedSet[v] = set
	}
	if _, seen := set[local]; seen {
		return
	}
	set[local] = struct{}{}
	h.observed[v] = append(h.observed[v], local)
}

// buildUnifiedLocked averages the fresh per-venue state for one symbol.
// The bool result is false when no venue has anything fresh.
func (h *Hub) buildUnifiedLocked(canonical string) (types.UnifiedTick, bool) {
	now := h.now()
	tick := types.UnifiedTick{Symbol: canonical, Ts: now}

	var prices, spreads, bidTotals, askTotals, imbalances []float64
	var fundings, ois []float64

	for _, v := range []types.Venue{types.VenueBinance, types.VenueBybit, types.VenueMEXC, types.VenueLBank} {
		key := venueSym{v, canonical}

		if m, ok := h.metricCache[key]; ok && now.Sub(m.ts) <= metricFreshness {
			if m.price > 0 {
				prices = append(prices, m.price)
			}
			if m.hasBook {
				spreads = append(spreads, m.spread)
				bidTotals = append(bidTotals, m.bidTotal)
				askTotals = append(askTotals, m.askTotal)
				if denom := m.bidTotal + m.askTotal; denom > 0 {
					imbalances = append(imbalances, (m.askTotal-m.bidTotal)/denom)
				}
			}
		}

		if f, ok := h.funding[key]; ok && now.Sub(f.ts) <= fundingOIFreshness {
			fundings = append(fundings, f.rate)
		}
		if points := h.oi[key]; len(points) > 0 {
			last := points[len(points)-1]
			if now.Sub(last.ts) <= fundingOIFreshness {
				ois = append(ois, last.value)
			}
		}
	}

	if len(prices) == 0 && len(spreads) == 0 {
		return tick, false
	}

	if len(prices) > 0 {
		tick.Price = types.Float(mean(prices))
		tick.Mark = tick.Price
	}
	if len(spreads) > 0 {
		tick.Spread = types.Float(mean(spreads))
		tick.BidTotal = types.Float(mean(bidTotals))
		tick.AskTotal = types.Float(mean(askTotals))
	}
	if len(imbalances) > 0 {
		tick.Imbalance = types.Float(mean(imbalances))
	}
	if len(fundings) > 0 {
		tick.Funding = types.Float(mean(fundings))
	}
	if len(ois) > 0 {
		tick.OI = types.Float(mean(ois))
	}
	if sweep, ok := h.sweepAggregateLocked(canonical, now); ok {
		tick.Sweep = types.Float(sweep)
	}

	return tick, true
}

// enqueue is non-blocking: on a full queue the oldest tick is dropped and
// the send retried once.
func (h *Hub) enqueue(tick types.UnifiedTick) {
	for {
		select {
		case h.queue <- tick:
			metrics.UnifiedEmitted.Inc()
			metrics.QueueDepth.Set(float64(len(h.queue)))
			return
		default:
		}
		select {
		case <-h.queue:
			metrics.QueueDrops.Inc()
		default:
		}
	}
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
