package feature

import (
	"time"

	"scalp-engine/pkg/types"
)

const (
	priceWindowCap   = 120
	resistanceWindow = 60 * time.Second

	fundingScale  = 0.01
	momentumScale = 0.003
	gapScale      = 0.002

	spreadFloor = 0.00005
)

// symbolState is the per-symbol rolling state behind the pipeline.
type symbolState struct {
	prices     *window
	vol        *volatility
	lastOI     float64
	lastOISeen bool
}

// Pipeline turns unified ticks into feature vectors. It is driven by the
// single engine consumer, so it keeps no lock of its own.
type Pipeline struct {
	symbols map[string]*symbolState
	btc     *BTCRegime
	now     func() time.Time
}

func NewPipeline(btc *BTCRegime) *Pipeline {
	return &Pipeline{
		symbols: make(map[string]*symbolState),
		btc:     btc,
		now:     time.Now,
	}
}

func (p *Pipeline) state(sym string) *symbolState {
	st, ok := p.symbols[sym]
	if !ok {
		st = &symbolState{
			prices: newWindow(priceWindowCap),
			vol:    newVolatility(),
		}
		p.symbols[sym] = st
	}
	return st
}

// Update ingests one unified tick and returns the derived feature vector.
// Missing tick fields fall back to neutral values rather than failing.
func (p *Pipeline) Update(t *types.UnifiedTick) *types.FeatureVector {
	st := p.state(t.Symbol)

	price := 0.0
	if t.Price != nil {
		price = *t.Price
	}
	if price > 0 {
		st.prices.push(t.Ts, price)
		st.vol.ingest(t.Ts, price)
	}

	f := &types.FeatureVector{}

	// Book shape.
	var bidTotal, askTotal float64
	if t.BidTotal != nil {
		bidTotal = *t.BidTotal
	}
	if t.AskTotal != nil {
		askTotal = *t.AskTotal
	}
	if denom := bidTotal + askTotal; denom > 0 {
		f.AskDom = clamp(askTotal/denom, 0, 1)
	} else {
		f.AskDom = 0.5
	}
	f.OrderflowImbalance = f.AskDom

	if t.Spread != nil && price > 0 {
		f.SpreadPct = *t.Spread / price
	}
	f.SpreadNotCollapsing = f.SpreadPct > spreadFloor

	// Unified ticks carry no per-venue ladder, so the gap above the ask is
	// unknown and the pressure derived from it stays zero.
	f.GapAbove = 0
	f.LiquidityPressure = clamp(f.GapAbove/gapScale, 0, 1)

	if t.Sweep != nil {
		f.SweepRejection = clamp(*t.Sweep, 0, 1)
	}

	// Funding and open interest.
	if t.Funding != nil {
		f.FundingImpulse = clamp(-*t.Funding/fundingScale, -1, 1)
	}
	if t.OI != nil {
		if st.lastOISeen && st.lastOI > 0 {
			div := clamp((*t.OI-st.lastOI)/st.lastOI, -1, 1)
			if div < 0 {
				div = 0
			}
			f.OIDivergence = div
			f.OIRising = *t.OI > st.lastOI
		}
		st.lastOI = *t.OI
		st.lastOISeen = true
	}

	// Momentum and volatility.
	r := st.prices.lastReturn()
	f.PriceFalling = r < 0
	if r < 0 {
		f.ShortMomentum = clamp(-r/momentumScale, 0, 1)
	}
	f.VolatilityBurst = st.vol.burst()

	// BTC regime.
	if p.btc != nil {
		pump := p.btc.Pump()
		f.BTCAlignment = 1 - pump
		f.BTCNotPumping = pump < btcPumpCeiling
	} else {
		f.BTCAlignment = 1
		f.BTCNotPumping = true
	}

	f.NearResistance = 1.0
	if price > 0 {
		if high, ok := st.prices.maxSince(p.now().Add(-resistanceWindow)); ok {
			f.NearResistance = (high - price) / price
		}
	}

	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
