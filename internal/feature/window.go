// Package feature derives the per-symbol microstructure feature vector from
// the unified tick stream, plus the separate BTC regime buffer that feeds
// the alignment feature.
package feature

import "time"

type sample struct {
	ts    time.Time
	price float64
}

// window is a bounded FIFO of (ts, price) samples. Oldest is dropped on
// overflow.
type window struct {
	samples []sample
	cap     int
}

func newWindow(capacity int) *window {
	return &window{cap: capacity}
}

func (w *window) push(ts time.Time, price float64) {
	w.samples = append(w.samples, sample{ts: ts, price: price})
	if len(w.samples) > w.cap {
		w.samples = w.samples[1:]
	}
}

func (w *window) len() int { return len(w.samples) }

// last returns the newest sample; ok is false on an empty window.
func (w *window) last() (sample, bool) {
	if len(w.samples) == 0 {
		return sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// lastReturn is the relative return between the two newest samples.
func (w *window) lastReturn() float64 {
	n := len(w.samples)
	if n < 2 {
		return 0
	}
	prev := w.samples[n-2].price
	if prev <= 0 {
		return 0
	}
	return (w.samples[n-1].price - prev) / prev
}

// since returns the samples with ts at or after the cutoff, oldest first.
func (w *window) since(cutoff time.Time) []sample {
	for i, s := range w.samples {
		if !s.ts.Before(cutoff) {
			return w.samples[i:]
		}
	}
	return nil
}

// maxSince is the highest price at or after the cutoff; ok is false when no
// sample qualifies.
func (w *window) maxSince(cutoff time.Time) (float64, bool) {
	recent := w.since(cutoff)
	if len(recent) == 0 {
		return 0, false
	}
	max := recent[0].price
	for _, s := range recent[1:] {
		if s.price > max {
			max = s.price
		}
	}
	return max, true
}

// returnOver is the relative return from the oldest sample at or after the
// cutoff to the newest sample.
func (w *window) returnOver(cutoff time.Time) float64 {
	recent := w.since(cutoff)
	if len(recent) < 2 {
		return 0
	}
	base := recent[0].price
	if base <= 0 {
		return 0
	}
	return (recent[len(recent)-1].price - base) / base
}
