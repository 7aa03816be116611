package hub

import (
	"time"

	"scalp-engine/pkg/types"
)

const (
	sweepLookback = 20 * time.Second
	// sweepCountNorm is the trade count at which the burst factor saturates.
	sweepCountNorm = 10
)

// tradeRing is a bounded FIFO of trade events for one (venue, symbol).
type tradeRing struct {
	events []types.TradeEvent
	cap    int
}

func newTradeRing(capacity int) *tradeRing {
	return &tradeRing{cap: capacity}
}

func (r *tradeRing) push(e types.TradeEvent) {
	r.events = append(r.events, e)
	if len(r.events) > r.cap {
		r.events = r.events[1:]
	}
}

// sellDominance scores taker-sell pressure over the lookback: the volume
// share of sell prints above 50 %, rescaled to [0,1], damped by a trade
// count factor so a single print cannot register as a sweep.
func (r *tradeRing) sellDominance(now time.Time, lookback time.Duration) (float64, bool) {
	cutoff := now.Add(-lookback)
	var sellVol, totalVol float64
	count := 0
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.Ts.Before(cutoff) {
			break
		}
		totalVol += e.Qty
		if e.Side == types.SideSell {
			sellVol += e.Qty
		}
		count++
	}
	if count == 0 || totalVol <= 0 {
		return 0, false
	}
	share := sellVol / totalVol
	dominance := (share - 0.5) / 0.5
	if dominance < 0 {
		dominance = 0
	}
	countFactor := float64(count) / sweepCountNorm
	if countFactor > 1 {
		countFactor = 1
	}
	return dominance * countFactor, true
}

// sweepAggregateLocked is the cross-venue mean of per-venue sell dominance.
func (h *Hub) sweepAggregateLocked(canonical string, now time.Time) (float64, bool) {
	var scores []float64
	for _, v := range []types.Venue{types.VenueBinance, types.VenueBybit, types.VenueMEXC, types.VenueLBank} {
		ring, ok := h.trades[venueSym{v, canonical}]
		if !ok {
			continue
		}
		if score, ok := ring.sellDominance(now, sweepLookback); ok {
			scores = append(scores, score)
		}
	}
	if len(scores) == 0 {
		return 0, false
	}
	return mean(scores), true
}
