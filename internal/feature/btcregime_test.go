package feature

import (
	"log/slog"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
)

func testRegime(now time.Time) *BTCRegime {
	b := NewBTCRegime(resty.New(), slog.Default())
	b.now = func() time.Time { return now }
	return b
}

func TestPumpEmptyBufferIsCalm(t *testing.T) {
	t.Parallel()
	b := testRegime(time.Now())
	assert.Equal(t, 0.0, b.Pump())
	assert.True(t, b.NotPumping())
}

func TestPumpFlatMarket(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := testRegime(now)
	for i := 0; i < 60; i++ {
		b.Observe(now.Add(time.Duration(i-60)*time.Minute), 100000)
	}
	assert.Equal(t, 0.0, b.Pump())
}

func TestPumpSaturatesOnRally(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := testRegime(now)
	// +3% over five minutes maxes the pump factor.
	b.Observe(now.Add(-5*time.Minute), 100000)
	b.Observe(now, 103000)
	assert.Equal(t, 1.0, b.Pump())
	assert.False(t, b.NotPumping())
}

func TestPumpUsesWorstWindow(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := testRegime(now)
	// Flat last five minutes but +1.5% over the hour: the hourly leg rules.
	b.Observe(now.Add(-59*time.Minute), 100000)
	b.Observe(now.Add(-4*time.Minute), 101500)
	b.Observe(now, 101500)
	assert.InDelta(t, 0.5, b.Pump(), 1e-9)
	assert.False(t, b.NotPumping())
}

func TestPumpIgnoresSelloff(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := testRegime(now)
	b.Observe(now.Add(-5*time.Minute), 100000)
	b.Observe(now, 97000)
	assert.Equal(t, 0.0, b.Pump())
}
