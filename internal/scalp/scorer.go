// Package scalp holds the short-side decision core: the weighted scorer,
// the multi-condition entry trigger and the trailing-stop exit rule.
package scalp

import (
	"math"

	"scalp-engine/pkg/types"
)

// Scoring weights. They sum to 100; liquidity_pressure carries weight even
// though the unified path feeds it zero, so the effective ceiling is lower.
var scoreWeights = []struct {
	get    func(f *types.FeatureVector) float64
	weight float64
}{
	{func(f *types.FeatureVector) float64 { return f.OIDivergence }, 20},
	{func(f *types.FeatureVector) float64 { return f.LiquidityPressure }, 20},
	{func(f *types.FeatureVector) float64 { return f.OrderflowImbalance }, 15},
	{func(f *types.FeatureVector) float64 { return f.SweepRejection }, 15},
	{func(f *types.FeatureVector) float64 { return f.ShortMomentum }, 10},
	{func(f *types.FeatureVector) float64 { return f.FundingImpulse }, 10},
	{func(f *types.FeatureVector) float64 { return f.BTCAlignment }, 10},
}

// Score computes the 0..100 short-setup score. Every input is clamped to
// [0,1] first; NaN counts as zero.
func Score(f *types.FeatureVector) float64 {
	var sum, total float64
	for _, w := range scoreWeights {
		v := w.get(f)
		if math.IsNaN(v) {
			v = 0
		}
		sum += clamp01(v) * w.weight
		total += w.weight
	}
	return sum / total * 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
