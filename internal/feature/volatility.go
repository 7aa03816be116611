package feature

import (
	"math"
	"time"
)

const (
	volatilityCap    = 600
	volatilityMaxAge = 300 * time.Second
	burstLookback    = 60 * time.Second
	burstScale       = 0.002
	burstMinSamples  = 5
)

// volatility keeps the longer price window behind the burst feature.
type volatility struct {
	prices *window
	now    func() time.Time
}

func newVolatility() *volatility {
	return &volatility{prices: newWindow(volatilityCap), now: time.Now}
}

// ingest accepts a sample only when the price is positive and the timestamp
// is within the skew bound of wall clock.
func (v *volatility) ingest(ts time.Time, price float64) {
	if price <= 0 {
		return
	}
	d := v.now().Sub(ts)
	if d < 0 {
		d = -d
	}
	if d >= volatilityMaxAge {
		return
	}
	v.prices.push(ts, price)
}

// burst is the sample standard deviation of consecutive returns over the
// last 60 s, scaled to [0,1]. Zero with fewer than five samples.
func (v *volatility) burst() float64 {
	recent := v.prices.since(v.now().Add(-burstLookback))
	if len(recent) < burstMinSamples {
		return 0
	}
	returns := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		prev := recent[i-1].price
		if prev <= 0 {
			continue
		}
		returns = append(returns, (recent[i].price-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	return clamp(sd/burstScale, 0, 1)
}
