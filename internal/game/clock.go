package game

import "math"

const (
	// Multiplier curve: multiplier(t) = exp(rate(t)*t) where the rate itself
	// ramps with elapsed time. Starts slow, accelerates, so early cashouts
	// feel safe and late ones risky.
	baseRate   = 0.05
	rateGrowth = 0.005
	maxRate    = 0.20
)

func growthRate(elapsed float64) float64 {
	r := baseRate + rateGrowth*elapsed
	if r > maxRate {
		r = maxRate
	}
	return r
}

// MultiplierAt returns the multiplier for elapsed seconds since round start,
// rounded to 4 decimals. Strictly increasing, MultiplierAt(0) == 1.0.
func MultiplierAt(elapsed float64) float64 {
	if elapsed <= 0 {
		return 1.0
	}
	return Round4(math.Exp(growthRate(elapsed) * elapsed))
}
