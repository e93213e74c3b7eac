// Package allocation turns the tick's signals into a risk-constrained
// target portfolio: edge scoring, regime filtering, switching-penalized
// weight optimization, gross allocation, constraint projection, and a
// turnover cap with exit preference.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
)

// Allocator owns all tick-to-tick allocation memory. It is single-writer
// state: Allocate and UpdateNLV must be called from the tick loop only.
type Allocator struct {
	cfg    config.AllocatorConfig
	logger core.ILogger

	alpha    float64
	volAlpha float64

	trackers    map[string]*ewmaDiffVar
	prevWeights map[string]float64
	prevTarget  map[string]float64

	volTracker *ewmaDiffVar
	volScale   float64

	peakPnL    float64
	currentPnL float64
	havePnL    bool

	diag Diagnostics
}

// New builds an allocator from a validated configuration. Degenerate
// parameters are construction-time failures, never retried.
func New(cfg config.AllocatorConfig, logger core.ILogger) (*Allocator, error) {
	if cfg.HorizonBars <= 0 {
		return nil, fmt.Errorf("allocator: horizon_bars must be positive, got %d", cfg.HorizonBars)
	}
	if cfg.WMax <= 0 || cfg.WMax > 1 {
		return nil, fmt.Errorf("allocator: w_max must be in (0, 1], got %v", cfg.WMax)
	}
	if cfg.SwitchLambda < 0 {
		return nil, fmt.Errorf("allocator: switch_lambda must be non-negative, got %v", cfg.SwitchLambda)
	}
	if cfg.GrossLimit <= 0 {
		return nil, fmt.Errorf("allocator: gross_limit must be positive, got %v", cfg.GrossLimit)
	}
	if cfg.TopN < 1 {
		return nil, fmt.Errorf("allocator: top_n must be at least 1, got %d", cfg.TopN)
	}
	if cfg.TurnoverPct <= 0 || cfg.TurnoverPct > 1 {
		return nil, fmt.Errorf("allocator: turnover_pct must be in (0, 1], got %v", cfg.TurnoverPct)
	}
	if cfg.ExitTurnoverMult < 1 {
		return nil, fmt.Errorf("allocator: exit_turnover_mult must be at least 1, got %v", cfg.ExitTurnoverMult)
	}

	a := &Allocator{
		cfg:         cfg,
		logger:      logger,
		alpha:       2.0 / float64(cfg.HorizonBars+1),
		trackers:    make(map[string]*ewmaDiffVar),
		prevWeights: make(map[string]float64),
		prevTarget:  make(map[string]float64),
		volScale:    1.0,
	}
	if cfg.TargetVol > 0 {
		a.volAlpha = 1 - math.Pow(0.5, 1.0/float64(cfg.VolHalflife))
		a.volTracker = newEWMADiffVar(a.volAlpha)
	}
	return a, nil
}

// UpdateNLV feeds the account's net liquidation value into the drawdown
// tracker. Called once per tick before Allocate.
func (a *Allocator) UpdateNLV(nlv float64) {
	if !a.havePnL {
		a.peakPnL = nlv
		a.havePnL = true
	}
	a.currentPnL = nlv
	if nlv > a.peakPnL {
		a.peakPnL = nlv
	}
}

func (a *Allocator) drawdown() float64 {
	if !a.havePnL {
		return 0
	}
	return a.peakPnL - a.currentPnL
}

// Allocate runs the full per-tick pipeline and returns the target position
// per instrument plus the names of the signals holding weight. positions is
// ground truth from the venue, not the allocator's own memory.
func (a *Allocator) Allocate(signals []core.Signal, prices map[string]float64, positions map[string]float64) (map[string]float64, []string, error) {
	if len(prices) == 0 {
		return nil, nil, fmt.Errorf("allocator: no prices supplied")
	}

	a.diag = Diagnostics{
		Edges:        make(map[string]float64),
		Sigmas:       make(map[string]float64),
		RegimeRatios: make(map[string]float64),
		Weights:      make(map[string]float64),
	}

	a.updateVolScale(positions, prices)
	a.diag.VolScale = a.volScale
	a.diag.Drawdown = a.drawdown()

	edges, usable := a.scoreEdges(signals, prices)
	cands := a.selectCandidates(usable, edges)

	weights := solveWeights(cands, a.cfg.SwitchLambda, a.cfg.WMax)
	active := make([]string, 0, len(weights))
	for name, w := range weights {
		a.diag.Weights[name] = w
		if w > weightTol {
			active = append(active, name)
		}
	}
	sort.Strings(active)
	if len(active) == 0 {
		a.addReason("flat")
	}

	raw := a.grossAllocate(usable, weights, prices)
	a.project(raw, prices)
	target := a.applyTurnover(raw, positions)

	a.prevWeights = weights
	a.prevTarget = target
	a.diag.Active = active
	if len(a.diag.Reasons) == 0 {
		a.diag.Reasons = []string{"ok"}
	}

	return target, active, nil
}

// addReason records a throttle code once per Allocate call; a single tick
// can trip several throttles and each must stay visible in the trace.
func (a *Allocator) addReason(code string) {
	for _, r := range a.diag.Reasons {
		if r == code {
			return
		}
	}
	a.diag.Reasons = append(a.diag.Reasons, code)
}

// scoreEdges runs the EWMA volatility update and the regime filter for each
// signal, returning the net edge per name and the signals with usable data.
func (a *Allocator) scoreEdges(signals []core.Signal, prices map[string]float64) (map[string]float64, []core.Signal) {
	type scored struct {
		sig   core.Signal
		sigma float64
	}
	var ss []scored
	for _, sig := range signals {
		if !a.legsPriced(sig, prices) {
			a.logger.Debug("skipping signal with unpriced legs", "signal", sig.Name)
			continue
		}
		tracker, ok := a.trackers[sig.Name]
		if !ok {
			tracker = newEWMADiffVar(a.alpha)
			a.trackers[sig.Name] = tracker
		}
		sigma := tracker.Observe(sig.SDollars)
		a.diag.Sigmas[sig.Name] = sigma
		ss = append(ss, scored{sig: sig, sigma: sigma})
	}

	var positive []float64
	for _, s := range ss {
		if s.sigma > 0 {
			positive = append(positive, s.sigma)
		}
	}
	med := median(positive)

	edges := make(map[string]float64, len(ss))
	usable := make([]core.Signal, 0, len(ss))
	for _, s := range ss {
		edge := 0.0
		ratio := 0.0
		if s.sigma > 0 {
			gross := math.Abs(s.sig.SDollars) - s.sig.EntryDollars - s.sig.RTCostDollars
			if gross > 0 {
				edge = gross / s.sigma
			}
			if med > 0 {
				ratio = s.sigma / med
				if ratio > a.cfg.RegimeCutoff {
					edge = 0
				}
			}
		}
		edges[s.sig.Name] = edge
		a.diag.Edges[s.sig.Name] = edge
		a.diag.RegimeRatios[s.sig.Name] = ratio
		usable = append(usable, s.sig)
	}
	return edges, usable
}

func (a *Allocator) legsPriced(sig core.Signal, prices map[string]float64) bool {
	for ticker := range sig.Legs {
		if p, ok := prices[ticker]; !ok || p <= 0 {
			return false
		}
	}
	return true
}

// selectCandidates unions the top-N signals by edge with the top-N by
// previous weight so incumbents stay visible to the switching penalty.
func (a *Allocator) selectCandidates(signals []core.Signal, edges map[string]float64) []candidate {
	names := make([]string, 0, len(signals))
	for _, s := range signals {
		names = append(names, s.Name)
	}

	byEdge := make([]string, len(names))
	copy(byEdge, names)
	sort.SliceStable(byEdge, func(i, j int) bool { return edges[byEdge[i]] > edges[byEdge[j]] })

	byPrev := make([]string, len(names))
	copy(byPrev, names)
	sort.SliceStable(byPrev, func(i, j int) bool { return a.prevWeights[byPrev[i]] > a.prevWeights[byPrev[j]] })

	chosen := make(map[string]bool)
	for i := 0; i < a.cfg.TopN && i < len(byEdge); i++ {
		chosen[byEdge[i]] = true
	}
	for i := 0; i < a.cfg.TopN && i < len(byPrev); i++ {
		if a.prevWeights[byPrev[i]] > 0 {
			chosen[byPrev[i]] = true
		}
	}

	cands := make([]candidate, 0, len(chosen))
	for name := range chosen {
		cands = append(cands, candidate{name: name, edge: edges[name], wPrev: a.prevWeights[name]})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].name < cands[j].name })
	return cands
}

// grossAllocate converts weights into per-instrument share targets. Each
// signal's notional is its weight times the effective gross budget; the
// unit count divides by the per-unit gross cost of the leg vector, signed
// by the direction of the mispricing.
func (a *Allocator) grossAllocate(signals []core.Signal, weights map[string]float64, prices map[string]float64) map[string]float64 {
	budget := a.cfg.GrossLimit * a.volScale
	target := make(map[string]float64)
	for _, sig := range signals {
		w := weights[sig.Name]
		if w <= weightTol || sig.SDollars == 0 {
			continue
		}
		unitGross := 0.0
		for ticker, shares := range sig.Legs {
			unitGross += math.Abs(shares * prices[ticker])
		}
		if unitGross <= 0 {
			continue
		}
		units := w * budget / unitGross
		direction := 1.0
		if sig.SDollars < 0 {
			direction = -1.0
		}
		for ticker, shares := range sig.Legs {
			target[ticker] += shares * units * direction
		}
	}
	return target
}

// project applies the hard constraints in order: per-instrument share caps
// first, then uniform scaling for the gross limit, then for the net limit.
func (a *Allocator) project(target map[string]float64, prices map[string]float64) {
	for ticker, pos := range target {
		if limit, ok := a.cfg.MaxShares[ticker]; ok {
			target[ticker] = clamp(pos, -limit, limit)
		}
	}

	gross, net := 0.0, 0.0
	for ticker, pos := range target {
		notional := pos * prices[ticker]
		gross += math.Abs(notional)
		net += notional
	}
	if gross > a.cfg.GrossLimit && gross > 0 {
		scale := a.cfg.GrossLimit / gross
		for ticker := range target {
			target[ticker] *= scale
		}
		net *= scale
		a.addReason("gross_scaled")
	}
	if a.cfg.NetLimit > 0 && math.Abs(net) > a.cfg.NetLimit {
		scale := a.cfg.NetLimit / math.Abs(net)
		for ticker := range target {
			target[ticker] *= scale
		}
		a.addReason("net_scaled")
	}
}

// applyTurnover bounds the per-tick move toward the raw target. Moves that
// reduce position magnitude use the exit budget; moves that add use the
// entry budget, further throttled under drawdown. A sign flip spends the
// exit budget down to zero before any entry budget on the far side.
func (a *Allocator) applyTurnover(raw map[string]float64, positions map[string]float64) map[string]float64 {
	ddFactor := 1.0
	if a.cfg.DDThrottleThreshold > 0 && a.drawdown() > a.cfg.DDThrottleThreshold {
		ddFactor = a.cfg.DDThrottleFactor
		a.addReason("dd_throttle")
	}

	tickers := make(map[string]bool)
	for t := range raw {
		tickers[t] = true
	}
	for t := range positions {
		tickers[t] = true
	}

	target := make(map[string]float64, len(tickers))
	for ticker := range tickers {
		current := positions[ticker]
		desired := raw[ticker]

		limit, ok := a.cfg.MaxShares[ticker]
		if !ok {
			target[ticker] = desired
			continue
		}
		entryBudget := limit * a.cfg.TurnoverPct * ddFactor
		exitBudget := limit * a.cfg.TurnoverPct * a.cfg.ExitTurnoverMult

		target[ticker] = stepToward(current, desired, entryBudget, exitBudget)
	}
	return target
}

// stepToward moves current toward desired, spending exit budget on the
// portion that shrinks the position and entry budget on the portion that
// grows it.
func stepToward(current, desired, entryBudget, exitBudget float64) float64 {
	if current == desired {
		return current
	}
	sameSign := current == 0 || desired == 0 || (current > 0) == (desired > 0)
	if sameSign {
		if math.Abs(desired) >= math.Abs(current) {
			return boundedStep(current, desired, entryBudget)
		}
		return boundedStep(current, desired, exitBudget)
	}

	// Sign flip: exit to zero first, then enter the other side.
	afterExit := boundedStep(current, 0, exitBudget)
	if afterExit != 0 {
		return afterExit
	}
	return boundedStep(0, desired, entryBudget)
}

func boundedStep(from, to, budget float64) float64 {
	delta := to - from
	if math.Abs(delta) <= budget {
		return to
	}
	if delta > 0 {
		return from + budget
	}
	return from - budget
}

// updateVolScale folds the current portfolio value into the realized-vol
// tracker and refreshes the gross budget scale. The scale can only shrink
// the budget relative to the configured limit.
func (a *Allocator) updateVolScale(positions map[string]float64, prices map[string]float64) {
	if a.volTracker == nil {
		return
	}
	value := 0.0
	for ticker, pos := range positions {
		if p, ok := prices[ticker]; ok && p > 0 {
			value += pos * p
		}
	}
	a.volTracker.Observe(value)
	if a.volTracker.Observations() < 2*a.cfg.VolHalflife {
		a.volScale = 1.0
		return
	}
	realized := a.volTracker.Sigma()
	if realized <= 0 {
		a.volScale = 1.0
		return
	}
	a.volScale = clamp(a.cfg.TargetVol/realized, 0.25, 1.0)
}

// Diagnostics returns the read-only trace of the last Allocate call.
func (a *Allocator) Diagnostics() Diagnostics {
	return a.diag
}
