package scalp

import (
	"math"
	"testing"

	"scalp-engine/pkg/types"
)

func TestScoreZeroFeatures(t *testing.T) {
	t.Parallel()
	if got := Score(&types.FeatureVector{}); got != 0 {
		t.Errorf("Score(zero) = %v, want 0", got)
	}
}

func TestScoreAllMaxed(t *testing.T) {
	t.Parallel()
	f := &types.FeatureVector{
		OIDivergence:       1,
		LiquidityPressure:  1,
		OrderflowImbalance: 1,
		SweepRejection:     1,
		ShortMomentum:      1,
		FundingImpulse:     1,
		BTCAlignment:       1,
	}
	if got := Score(f); math.Abs(got-100) > 1e-9 {
		t.Errorf("Score(maxed) = %v, want 100", got)
	}
}

func TestScoreWeights(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		f    types.FeatureVector
		want float64
	}{
		{"oi_divergence only", types.FeatureVector{OIDivergence: 1}, 20},
		{"liquidity_pressure only", types.FeatureVector{LiquidityPressure: 1}, 20},
		{"orderflow_imbalance only", types.FeatureVector{OrderflowImbalance: 1}, 15},
		{"sweep_rejection only", types.FeatureVector{SweepRejection: 1}, 15},
		{"short_momentum only", types.FeatureVector{ShortMomentum: 1}, 10},
		{"funding_impulse only", types.FeatureVector{FundingImpulse: 1}, 10},
		{"btc_alignment only", types.FeatureVector{BTCAlignment: 1}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(&tt.f); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreClampsInputs(t *testing.T) {
	t.Parallel()
	over := &types.FeatureVector{OIDivergence: 5}
	if got := Score(over); math.Abs(got-20) > 1e-9 {
		t.Errorf("Score(over-range) = %v, want 20", got)
	}
	// Negative funding impulse scores zero rather than subtracting.
	neg := &types.FeatureVector{FundingImpulse: -0.8, OIDivergence: 1}
	if got := Score(neg); math.Abs(got-20) > 1e-9 {
		t.Errorf("Score(negative input) = %v, want 20", got)
	}
}

func TestScoreNaNInput(t *testing.T) {
	t.Parallel()
	f := &types.FeatureVector{OIDivergence: math.NaN(), BTCAlignment: 1}
	got := Score(f)
	if math.IsNaN(got) {
		t.Fatal("Score produced NaN")
	}
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("Score(NaN input) = %v, want 10", got)
	}
}

func TestScoreCleanShortSetup(t *testing.T) {
	t.Parallel()
	// A strong live setup: rising OI, heavy ask side, sweep dominance,
	// BTC pumping hard (alignment near zero scores nothing).
	f := &types.FeatureVector{
		SweepRejection:     0.9,
		OrderflowImbalance: 0.72,
		OIDivergence:       1.0,
		ShortMomentum:      1.0,
		LiquidityPressure:  1.0,
		FundingImpulse:     0.2,
		BTCAlignment:       0.30,
	}
	got := Score(f)
	if got < 60 {
		t.Errorf("Score(clean setup) = %v, want >= 60", got)
	}
	if got > 100 {
		t.Errorf("Score(clean setup) = %v, want <= 100", got)
	}
}
