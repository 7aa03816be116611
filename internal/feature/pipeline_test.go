package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scalp-engine/pkg/types"
)

func tick(sym string, ts time.Time, price float64) *types.UnifiedTick {
	return &types.UnifiedTick{Symbol: sym, Ts: ts, Price: types.Float(price)}
}

func TestAskDomDefaultsWithoutBook(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	f := p.Update(tick("PEPEUSDT", time.Now(), 0.001))
	assert.Equal(t, 0.5, f.AskDom)
	assert.Equal(t, 0.5, f.OrderflowImbalance)
}

func TestAskDomFromBookTotals(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	u := tick("PEPEUSDT", time.Now(), 0.001)
	u.BidTotal = types.Float(30)
	u.AskTotal = types.Float(70)
	f := p.Update(u)
	assert.InDelta(t, 0.7, f.AskDom, 1e-9)
}

func TestSpreadPct(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	u := tick("PEPEUSDT", time.Now(), 2.0)
	u.Spread = types.Float(0.003)
	f := p.Update(u)
	assert.InDelta(t, 0.0015, f.SpreadPct, 1e-9)
	assert.True(t, f.SpreadNotCollapsing)

	u.Spread = types.Float(0.00002)
	f = p.Update(u)
	assert.False(t, f.SpreadNotCollapsing)
}

func TestFundingImpulse(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)

	// Negative funding pays shorts: positive impulse.
	u := tick("PEPEUSDT", time.Now(), 1.0)
	u.Funding = types.Float(-0.005)
	f := p.Update(u)
	assert.InDelta(t, 0.5, f.FundingImpulse, 1e-9)

	// Positive funding costs shorts: negative impulse, clamped at -1.
	u.Funding = types.Float(0.05)
	f = p.Update(u)
	assert.Equal(t, -1.0, f.FundingImpulse)
}

func TestOIDivergence(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	now := time.Now()

	u := tick("PEPEUSDT", now, 1.0)
	u.OI = types.Float(1000)
	f := p.Update(u)
	assert.Equal(t, 0.0, f.OIDivergence, "first OI sample has no baseline")

	u = tick("PEPEUSDT", now.Add(time.Second), 1.0)
	u.OI = types.Float(1100)
	f = p.Update(u)
	assert.InDelta(t, 0.1, f.OIDivergence, 1e-9)
	assert.True(t, f.OIRising)

	// Falling OI floors at zero for the short-side signal.
	u = tick("PEPEUSDT", now.Add(2*time.Second), 1.0)
	u.OI = types.Float(900)
	f = p.Update(u)
	assert.Equal(t, 0.0, f.OIDivergence)
	assert.False(t, f.OIRising)
}

func TestShortMomentum(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	now := time.Now()

	p.Update(tick("PEPEUSDT", now, 1.0))
	f := p.Update(tick("PEPEUSDT", now.Add(time.Second), 0.9985))
	assert.True(t, f.PriceFalling)
	assert.InDelta(t, 0.5, f.ShortMomentum, 1e-9)

	// Rising price carries no short momentum.
	f = p.Update(tick("PEPEUSDT", now.Add(2*time.Second), 1.01))
	assert.False(t, f.PriceFalling)
	assert.Equal(t, 0.0, f.ShortMomentum)
}

func TestNearResistance(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	now := time.Now()

	p.Update(tick("PEPEUSDT", now.Add(-10*time.Second), 1.05))
	f := p.Update(tick("PEPEUSDT", now, 1.0))
	assert.InDelta(t, 0.05, f.NearResistance, 1e-9)
}

func TestBTCAlignmentNeutralWithoutRegime(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	f := p.Update(tick("PEPEUSDT", time.Now(), 1.0))
	assert.Equal(t, 1.0, f.BTCAlignment)
	assert.True(t, f.BTCNotPumping)
}

func TestSweepPassthrough(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	u := tick("PEPEUSDT", time.Now(), 1.0)
	u.Sweep = types.Float(0.85)
	f := p.Update(u)
	assert.InDelta(t, 0.85, f.SweepRejection, 1e-9)

	// No sweep aggregate on the tick leaves the feature at zero.
	f = p.Update(tick("PEPEUSDT", time.Now(), 1.0))
	assert.Equal(t, 0.0, f.SweepRejection)
}

func TestGapAndLiquidityPressureZeroOnUnified(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	f := p.Update(tick("PEPEUSDT", time.Now(), 1.0))
	assert.Equal(t, 0.0, f.GapAbove)
	assert.Equal(t, 0.0, f.LiquidityPressure)
}

func TestSymbolsIsolated(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil)
	now := time.Now()

	p.Update(tick("AUSDT", now, 1.0))
	u := tick("BUSDT", now, 2.0)
	u.OI = types.Float(500)
	p.Update(u)

	// A's window has one sample; B's price must not leak into A's return.
	f := p.Update(tick("AUSDT", now.Add(time.Second), 0.997))
	assert.True(t, f.PriceFalling)
	assert.InDelta(t, 1.0, f.ShortMomentum, 1e-9)
}
