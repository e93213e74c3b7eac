package allocation

import (
	"math"
	"sort"
)

// candidate is one signal entered into the weight optimization.
type candidate struct {
	name  string
	edge  float64
	wPrev float64
}

// solveWeights maximizes sum(w_i * edge_i) - lambda * sum(|w_i - wprev_i|)
// subject to sum(w_i) = 1 and 0 <= w_i <= wMax.
//
// The candidate set is small, so the L1 term is handled exactly: enumerate
// every sign pattern of (w_i - wprev_i). A pattern pins each weight into a
// box ([wprev, wMax] when growing, [0, wprev] when shrinking), which turns
// the objective linear inside the pattern. Each box sub-problem is solved by
// a greedy fill ordered by effective coefficient edge_i - lambda*sign_i.
// The winner across patterns is picked on the true L1 objective, so pattern
// boundaries introduce no error.
//
// If every edge is non-positive the answer is all-zero weights. If no
// pattern can reach total weight 1 (sum of caps below 1), weights are filled
// to their caps and the total stays below 1; staying under-invested is the
// conservative direction.
func solveWeights(cands []candidate, lambda, wMax float64) map[string]float64 {
	weights := make(map[string]float64, len(cands))
	for _, c := range cands {
		weights[c.name] = 0
	}

	anyPositive := false
	for _, c := range cands {
		if c.edge > 0 {
			anyPositive = true
			break
		}
	}
	if !anyPositive {
		return weights
	}

	// Stable order so tie-breaking is deterministic run to run.
	ordered := make([]candidate, len(cands))
	copy(ordered, cands)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].name < ordered[j].name })
	for i := range ordered {
		ordered[i].wPrev = clamp(ordered[i].wPrev, 0, wMax)
	}

	n := len(ordered)
	bestObj := math.Inf(-1)
	var best []float64

	for pattern := 0; pattern < 1<<n; pattern++ {
		lo := make([]float64, n)
		hi := make([]float64, n)
		sign := make([]float64, n)
		sumLo, sumHi := 0.0, 0.0
		for i, c := range ordered {
			if pattern&(1<<i) != 0 {
				sign[i] = 1
				lo[i], hi[i] = c.wPrev, wMax
			} else {
				sign[i] = -1
				lo[i], hi[i] = 0, c.wPrev
			}
			sumLo += lo[i]
			sumHi += hi[i]
		}
		if sumLo > 1+weightTol || sumHi < 1-weightTol {
			continue
		}

		w := greedyFill(ordered, lo, hi, sign, lambda, 1-sumLo)
		obj := trueObjective(ordered, w, lambda)
		if obj > bestObj+weightTol {
			bestObj = obj
			best = w
		}
	}

	if best == nil {
		// No pattern reaches total weight 1: fill to caps instead.
		best = make([]float64, n)
		for i := range ordered {
			if ordered[i].edge > 0 {
				best[i] = wMax
			}
		}
	}

	for i, c := range ordered {
		weights[c.name] = best[i]
	}
	return weights
}

const weightTol = 1e-9

// greedyFill starts every weight at its lower bound and distributes the
// remaining budget to candidates in descending effective-coefficient order.
func greedyFill(cands []candidate, lo, hi, sign []float64, lambda, budget float64) []float64 {
	w := make([]float64, len(cands))
	copy(w, lo)

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca := cands[order[a]].edge - lambda*sign[order[a]]
		cb := cands[order[b]].edge - lambda*sign[order[b]]
		return ca > cb
	})

	remaining := budget
	for _, i := range order {
		if remaining <= weightTol {
			break
		}
		// Only fill where it helps the objective; budget left unspent
		// here is picked up by a different pattern being optimal.
		if cands[i].edge-lambda*sign[i] <= 0 && w[i] >= lo[i] {
			continue
		}
		room := hi[i] - w[i]
		add := math.Min(room, remaining)
		w[i] += add
		remaining -= add
	}

	// The simplex constraint is an equality: if positive-coefficient names
	// could not absorb the budget, force the rest in coefficient order.
	for _, i := range order {
		if remaining <= weightTol {
			break
		}
		room := hi[i] - w[i]
		add := math.Min(room, remaining)
		w[i] += add
		remaining -= add
	}
	if remaining > weightTol {
		return nil
	}
	return w
}

func trueObjective(cands []candidate, w []float64, lambda float64) float64 {
	if w == nil {
		return math.Inf(-1)
	}
	obj := 0.0
	for i, c := range cands {
		obj += w[i]*c.edge - lambda*math.Abs(w[i]-c.wPrev)
	}
	return obj
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
