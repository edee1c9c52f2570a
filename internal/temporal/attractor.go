package temporal

import "math"

// #region distance
// distance measures how far the live vectors sit from an anchor. Trait
// distance is weighted relative to value distance. A nil live vector has not
// been observed this turn and contributes nothing.
func distance(values, traits map[string]float64, anchor Anchor, traitWeight float64) float64 {
	var d float64
	if values != nil {
		d += euclid(values, anchor.Value)
	}
	if traits != nil {
		d += traitWeight * euclid(traits, anchor.Trait)
	}
	return d
}

func euclid(a, b map[string]float64) float64 {
	var sum float64
	for k, x := range a {
		if !finite(x) {
			x = 0
		}
		diff := x - b[k]
		sum += diff * diff
	}
	for k, y := range b {
		if _, ok := a[k]; !ok {
			sum += y * y
		}
	}
	return math.Sqrt(sum)
}

// #endregion distance

// #region middle-anchor
// trackVector moves every observed key of anchor toward live by alpha.
// Keys never seen before are adopted at the live value.
func trackVector(anchor, live map[string]float64, alpha float64) map[string]float64 {
	out := copyVector(anchor)
	for k, x := range live {
		if !finite(x) {
			continue
		}
		prev, ok := out[k]
		if !ok {
			prev = x
		}
		out[k] = ema(prev, x, alpha)
	}
	return out
}

// #endregion middle-anchor

// #region math
func ema(prev, x, alpha float64) float64 {
	return prev*(1-alpha) + x*alpha
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clamp(x, lo, hi float64) float64 {
	if !finite(x) {
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

func clamp01(x float64) float64 {
	return clamp(x, 0, 1)
}

func nonNegative(x float64) float64 {
	if !finite(x) || x < 0 {
		return 0
	}
	return x
}

// #endregion math
