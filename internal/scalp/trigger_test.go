package scalp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-engine/pkg/types"
)

// cleanSetup holds all seven conditions.
func cleanSetup() *types.FeatureVector {
	return &types.FeatureVector{
		SweepRejection: 0.9,
		AskDom:         0.72,
		GapAbove:       0.006,
		SpreadPct:      0.0015,
		OIDivergence:   0.10,
		FundingImpulse: -0.002,
		BTCAlignment:   0.30,
	}
}

func TestTriggerFullSetAllConditions(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(6, false, 5*time.Minute, 8)

	pass, failed := tr.Evaluate(cleanSetup())
	assert.True(t, pass)
	assert.Empty(t, failed)
}

func TestTriggerSixOfSeven(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(6, false, 5*time.Minute, 8)

	f := cleanSetup()
	f.BTCAlignment = 0.9
	pass, failed := tr.Evaluate(f)
	assert.True(t, pass)
	assert.Equal(t, []string{"btc_alignment"}, failed)
}

func TestTriggerScoreGateMiss(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(6, false, 5*time.Minute, 8)

	f := cleanSetup()
	f.OIDivergence = 0
	f.FundingImpulse = 0
	pass, failed := tr.Evaluate(f)
	assert.False(t, pass)
	assert.Len(t, failed, 2)
}

func TestTriggerRelaxedDropsSweep(t *testing.T) {
	t.Parallel()
	// Relaxed mode: sweep condition removed, 5 of the remaining 6 needed.
	tr := NewTrigger(6, true, 5*time.Minute, 8)

	f := cleanSetup()
	f.SweepRejection = 0
	f.GapAbove = 0
	pass, failed := tr.Evaluate(f)
	assert.True(t, pass)
	assert.Equal(t, []string{"gap_above"}, failed)

	f.BTCAlignment = 0.9
	pass, _ = tr.Evaluate(f)
	assert.False(t, pass, "4 of 6 must not pass")
}

func TestTriggerCooldown(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(6, false, 5*time.Minute, 8)
	now := time.Now()
	tr.now = func() time.Time { return now }

	require.False(t, tr.OnCooldown("AIDOGEUSDT"))
	tr.MarkFired("AIDOGEUSDT")
	assert.True(t, tr.OnCooldown("AIDOGEUSDT"))
	assert.False(t, tr.OnCooldown("PEPEUSDT"), "cooldown is per symbol")

	now = now.Add(5*time.Minute + time.Second)
	assert.False(t, tr.OnCooldown("AIDOGEUSDT"))
}

func TestTriggerDailyBudget(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(6, false, time.Minute, 2)
	now := time.Date(2026, 3, 10, 23, 50, 0, 0, time.Local)
	tr.now = func() time.Time { return now }

	require.True(t, tr.DailyBudgetLeft())
	tr.MarkFired("A1USDT")
	tr.MarkFired("A2USDT")
	assert.False(t, tr.DailyBudgetLeft())

	// Local midnight resets the counter.
	now = now.Add(15 * time.Minute)
	assert.True(t, tr.DailyBudgetLeft())
}

func TestDedupHashStable(t *testing.T) {
	t.Parallel()
	f := cleanSetup()
	h1 := DedupHash("PEPEUSDT", 0.0000123, 72.4, f)
	h2 := DedupHash("PEPEUSDT", 0.0000123, 72.9, f)
	assert.Equal(t, h1, h2, "same int score and rounded inputs must collide")

	h3 := DedupHash("PEPEUSDT", 0.0000123, 73.1, f)
	assert.NotEqual(t, h1, h3, "different int score must differ")

	h4 := DedupHash("DOGEUSDT", 0.0000123, 72.4, f)
	assert.NotEqual(t, h1, h4, "different symbol must differ")

	g := cleanSetup()
	g.AskDom = 0.73
	h5 := DedupHash("PEPEUSDT", 0.0000123, 72.4, g)
	assert.NotEqual(t, h1, h5, "feature change past 4 dp must differ")
}

func TestDedupHashRoundingCollapses(t *testing.T) {
	t.Parallel()
	f := cleanSetup()
	g := cleanSetup()
	g.AskDom = f.AskDom + 0.00001
	h1 := DedupHash("PEPEUSDT", 0.0000123, 70, f)
	h2 := DedupHash("PEPEUSDT", 0.0000123, 70, g)
	assert.Equal(t, h1, h2, "sub-4dp feature jitter must collapse")
}
