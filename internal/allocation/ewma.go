package allocation

import (
	"math"
	"sort"
)

// ewmaDiffVar tracks an exponentially weighted variance of the first
// difference of an observed series. Used per signal on the mispricing
// value, and on portfolio value for volatility scaling.
type ewmaDiffVar struct {
	alpha    float64
	last     float64
	variance float64
	count    int
}

func newEWMADiffVar(alpha float64) *ewmaDiffVar {
	return &ewmaDiffVar{alpha: alpha}
}

// Observe folds the next value into the tracker and returns the current
// sigma. The first observation only seeds the previous value; sigma is
// zero until at least one difference has been seen.
func (e *ewmaDiffVar) Observe(x float64) float64 {
	if e.count == 0 {
		e.last = x
		e.count = 1
		return 0
	}
	d := x - e.last
	e.last = x
	if e.count == 1 {
		e.variance = d * d
	} else {
		e.variance = (1-e.alpha)*e.variance + e.alpha*d*d
	}
	e.count++
	return e.Sigma()
}

func (e *ewmaDiffVar) Sigma() float64 {
	if e.variance <= 0 {
		return 0
	}
	return math.Sqrt(e.variance)
}

// Observations returns how many values have been folded in.
func (e *ewmaDiffVar) Observations() int {
	return e.count
}

// median returns the median of xs. Empty input yields zero. xs is not
// modified.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
