package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharpe_FewerThanTwoSamples(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe(nil))
	assert.Equal(t, 0.0, Sharpe([]float64{0.05}))
}

func TestSharpe_ZeroMeanIsZero(t *testing.T) {
	// mean=0, stddev=0.01414: ratio is 0 regardless of variance.
	assert.InDelta(t, 0.0, Sharpe([]float64{0.01, -0.01}), 1e-12)
}

func TestSharpe_PositiveDrift(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.015, 0.01, 0.02}
	got := Sharpe(returns)

	mean := 0.015
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / 4)
	assert.InDelta(t, mean/std*math.Sqrt(365), got, 1e-9)
	assert.Greater(t, got, 0.0)
}

func TestSharpe_ZeroVarianceSubstitution(t *testing.T) {
	// Identical returns: stddev 0 → substituted with 1.
	got := Sharpe([]float64{0.01, 0.01, 0.01})
	assert.InDelta(t, 0.01*math.Sqrt(365), got, 1e-9)
}

func TestMaxDrawdown_EmptyAndFlat(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1000, 1000, 1000}))
}

func TestMaxDrawdown_NonDecreasingIsZero(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1000, 1010, 1050, 1050, 1200}))
}

func TestMaxDrawdown_PeakToTrough(t *testing.T) {
	// Peak 1200, trough 900 → 0.25. Later recovery does not reduce it.
	curve := []float64{1000, 1200, 900, 1100, 1300}
	assert.InDelta(t, 0.25, MaxDrawdown(curve), 1e-9)
}

func TestMaxDrawdown_TracksWorstOfSeveralDips(t *testing.T) {
	curve := []float64{1000, 950, 1100, 880, 1050}
	// First dip: 50/1000 = 0.05. Second: (1100−880)/1100 = 0.2.
	assert.InDelta(t, 0.2, MaxDrawdown(curve), 1e-9)
	assert.GreaterOrEqual(t, MaxDrawdown(curve), 0.0)
}
