package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurstNeedsFiveSamples(t *testing.T) {
	t.Parallel()
	v := newVolatility()
	now := time.Now()
	v.now = func() time.Time { return now }

	for i := 0; i < 4; i++ {
		v.ingest(now.Add(time.Duration(i-4)*time.Second), 1.0)
	}
	assert.Equal(t, 0.0, v.burst())
}

func TestBurstFlatPricesIsZero(t *testing.T) {
	t.Parallel()
	v := newVolatility()
	now := time.Now()
	v.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		v.ingest(now.Add(time.Duration(i-10)*time.Second), 1.0)
	}
	assert.Equal(t, 0.0, v.burst())
}

func TestBurstRisesWithChop(t *testing.T) {
	t.Parallel()
	v := newVolatility()
	now := time.Now()
	v.now = func() time.Time { return now }

	// Alternating ±0.5% swings saturate the 0.2% stddev scale.
	price := 1.0
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			price *= 1.005
		} else {
			price *= 0.995
		}
		v.ingest(now.Add(time.Duration(i-20)*time.Second), price)
	}
	assert.Equal(t, 1.0, v.burst())
}

func TestBurstIgnoresOldSamples(t *testing.T) {
	t.Parallel()
	v := newVolatility()
	now := time.Now()
	v.now = func() time.Time { return now }

	// Violent swings outside the 60s lookback must not register.
	price := 1.0
	for i := 0; i < 20; i++ {
		price *= 1.01
		v.ingest(now.Add(-4*time.Minute+time.Duration(i)*time.Second), price)
	}
	assert.Equal(t, 0.0, v.burst())
}

func TestIngestGates(t *testing.T) {
	t.Parallel()
	v := newVolatility()
	now := time.Now()
	v.now = func() time.Time { return now }

	v.ingest(now, 0)                        // non-positive price
	v.ingest(now.Add(-10*time.Minute), 1.0) // stale timestamp
	v.ingest(now.Add(10*time.Minute), 1.0)  // future timestamp
	assert.Equal(t, 0, v.prices.len())

	v.ingest(now, 1.0)
	assert.Equal(t, 1, v.prices.len())
}
