package scalp

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"scalp-engine/pkg/types"
)

// A condition is one boolean entry gate over the feature vector.
type condition struct {
	name string
	hold func(f *types.FeatureVector) bool
}

var fullConditions = []condition{
	{"sweep_rejection", func(f *types.FeatureVector) bool { return f.SweepRejection >= 0.7 }},
	{"ask_dom", func(f *types.FeatureVector) bool { return f.AskDom > 0.6 }},
	{"gap_above", func(f *types.FeatureVector) bool { return f.GapAbove > 0.005 }},
	{"spread_pct", func(f *types.FeatureVector) bool { return f.SpreadPct < 0.002 }},
	{"oi_divergence", func(f *types.FeatureVector) bool { return f.OIDivergence > 0 }},
	{"funding_impulse", func(f *types.FeatureVector) bool { return f.FundingImpulse < 0 }},
	{"btc_alignment", func(f *types.FeatureVector) bool { return f.BTCAlignment < 0.5 }},
}

// Trigger evaluates the multi-condition entry gate and owns the in-process
// bookkeeping around it: per-symbol cooldowns and the daily signal counter.
type Trigger struct {
	conditions []condition
	minHold    int

	cooldown        time.Duration
	maxDailySignals int

	mu         sync.Mutex
	lastSignal map[string]time.Time
	dailyCount int
	dailyDay   int

	now func() time.Time
}

// NewTrigger builds the trigger. With relaxed set, the sweep condition is
// dropped from the set and one fewer condition is required; the unified
// stream cannot always observe trade-level sweeps.
func NewTrigger(minConditions int, relaxed bool, cooldown time.Duration, maxDaily int) *Trigger {
	conds := fullConditions
	if relaxed {
		conds = fullConditions[1:]
		minConditions--
	}
	if minConditions < 1 {
		minConditions = 1
	}
	return &Trigger{
		conditions:      conds,
		minHold:         minConditions,
		cooldown:        cooldown,
		maxDailySignals: maxDaily,
		lastSignal:      make(map[string]time.Time),
		now:             time.Now,
	}
}

// Evaluate reports whether the condition gate holds, plus the names of the
// failed conditions for diagnostics.
func (t *Trigger) Evaluate(f *types.FeatureVector) (bool, []string) {
	var failed []string
	held := 0
	for _, c := range t.conditions {
		if c.hold(f) {
			held++
		} else {
			failed = append(failed, c.name)
		}
	}
	return held >= t.minHold, failed
}

// OnCooldown reports whether the symbol fired a signal within the cooldown.
func (t *Trigger) OnCooldown(sym string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSignal[sym]
	if !ok {
		return false
	}
	return t.now().Sub(last) < t.cooldown
}

// DailyBudgetLeft reports whether today's signal count is still under the
// cap. The counter resets at local midnight.
func (t *Trigger) DailyBudgetLeft() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()
	return t.dailyCount < t.maxDailySignals
}

// MarkFired records a fired signal for cooldown and daily accounting.
func (t *Trigger) MarkFired(sym string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()
	t.lastSignal[sym] = t.now()
	t.dailyCount++
}

func (t *Trigger) rollDayLocked() {
	day := t.now().YearDay()
	if day != t.dailyDay {
		t.dailyDay = day
		t.dailyCount = 0
	}
}

// DedupHash builds the content hash that suppresses repeated signals for the
// same setup: symbol, price at 5 dp, integer score, and six feature values
// at 4 dp, in a fixed order.
func DedupHash(sym string, price float64, score float64, f *types.FeatureVector) string {
	parts := []string{
		sym,
		decimal.NewFromFloat(price).Round(5).String(),
		fmt.Sprintf("%d", int(score)),
		round4(f.SweepRejection),
		round4(f.AskDom),
		round4(f.GapAbove),
		round4(f.SpreadPct),
		round4(f.OIDivergence),
		round4(f.FundingImpulse),
	}
	h := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

func round4(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}
