package mot

import "math"

// ema blends previous value toward observation: (1-w)*old + w*obs
func ema(old, obs, w float64) float64 {
	return (1-w)*old + w*obs
}

// emaPoint applies ema to both coordinates
func emaPoint(old, obs Point, w float64) Point {
	return Point{
		X: ema(old.X, obs.X, w),
		Y: ema(old.Y, obs.Y, w),
	}
}

func clampFloat64(v, lo, hi float64) float64 {
	return maxFloat64(lo, minFloat64(v, hi))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
