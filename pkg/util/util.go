package util

import "math"

// Clamp bounds x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	// guard against NaN
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Round rounds x to the given number of decimal places, half to even.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow10(places)
	return math.RoundToEven(x*p) / p
}

// Finite reports whether x is neither NaN nor ±Inf.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
