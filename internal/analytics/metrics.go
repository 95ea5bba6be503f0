package analytics

import "math"

// Sharpe annualizes the return series at ×√365 (one sample per update).
// Uses sample standard deviation (n−1). Fewer than two samples yields 0.
// A stddev of exactly 0 is substituted with 1 — a documented approximation
// that biases the ratio toward the raw mean in the zero-variance case.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std == 0 {
		std = 1
	}
	return mean / std * math.Sqrt(365)
}

// MaxDrawdown is the largest peak-to-trough fall over the equity curve, as
// a fraction of the running peak. Single left-to-right pass with a
// monotone non-decreasing peak tracker; 0 iff the curve never declines.
func MaxDrawdown(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	maxDd := 0.0
	for _, e := range curve {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > maxDd {
				maxDd = dd
			}
		}
	}
	return maxDd
}
