package scalp

import "scalp-engine/pkg/types"

// ExitParams are the trailing-stop tunables, in percent units.
type ExitParams struct {
	ActivatePct float64
	GivebackPct float64
	HardStopPct float64
}

// ExitDecision is the outcome of one trailing-stop evaluation.
type ExitDecision struct {
	Exit        bool
	Reason      string
	PnlPct      float64
	PeakPnlPct  float64
	NewBestLow  float64
	TrailActive bool
}

// TrailingForShort evaluates the short-side trailing stop for one price
// update. bestLow is the lowest price seen since entry and never increases;
// peak PnL is derived from it. The hard stop wins over the trail.
func TrailingForShort(entry, current, bestLow float64, p ExitParams) ExitDecision {
	if current < bestLow {
		bestLow = current
	}
	pnl := types.PnlPctShort(entry, current)
	peak := types.PnlPctShort(entry, bestLow)

	d := ExitDecision{
		PnlPct:      pnl,
		PeakPnlPct:  peak,
		NewBestLow:  bestLow,
		TrailActive: pnl >= p.ActivatePct && peak >= p.ActivatePct,
	}

	switch {
	case pnl <= -p.HardStopPct:
		d.Exit = true
		d.Reason = types.ExitHardStop
	case d.TrailActive && peak-pnl >= p.GivebackPct:
		d.Exit = true
		d.Reason = types.ExitTrailingGiveback
	}
	return d
}
