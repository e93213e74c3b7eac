package allocation

import (
	"math"
	"testing"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/pkg/logging"
)

func testConfig() config.AllocatorConfig {
	return config.AllocatorConfig{
		GrossLimit:       1000,
		NetLimit:         0,
		MaxShares:        map[string]float64{"AAA": 1000, "BBB": 1000},
		TopN:             2,
		TurnoverPct:      1.0,
		HorizonBars:      20,
		SwitchLambda:     0,
		RegimeCutoff:     100,
		WMax:             1.0,
		ExitTurnoverMult: 1.0,
	}
}

func newTestAllocator(t *testing.T, cfg config.AllocatorConfig) *Allocator {
	t.Helper()
	a, err := New(cfg, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func sig(name string, s float64, legs map[string]float64) core.Signal {
	return core.Signal{Name: name, SDollars: s, Legs: legs}
}

// warm runs one tick so the EWMA trackers have a previous observation.
func warm(t *testing.T, a *Allocator, signals []core.Signal, prices map[string]float64) {
	t.Helper()
	if _, _, err := a.Allocate(signals, prices, map[string]float64{}); err != nil {
		t.Fatalf("warmup tick: %v", err)
	}
}

func TestNew_DegenerateConfig(t *testing.T) {
	cases := []func(*config.AllocatorConfig){
		func(c *config.AllocatorConfig) { c.HorizonBars = 0 },
		func(c *config.AllocatorConfig) { c.WMax = 0 },
		func(c *config.AllocatorConfig) { c.WMax = 1.5 },
		func(c *config.AllocatorConfig) { c.SwitchLambda = -0.1 },
		func(c *config.AllocatorConfig) { c.GrossLimit = 0 },
		func(c *config.AllocatorConfig) { c.TurnoverPct = 0 },
	}
	for i, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := New(cfg, logging.NewNopLogger()); err == nil {
			t.Errorf("case %d: expected construction error", i)
		}
	}
}

func TestAllocate_DirectionFollowsSignalSign(t *testing.T) {
	a := newTestAllocator(t, testConfig())
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": -1}

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	target, active, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	// sigma = 5, edge = 10/5 = 2, full weight, 1000 budget / 100 unit gross
	// = 10 units; positive mispricing keeps the canonical leg sign.
	if math.Abs(target["AAA"]-(-10)) > 1e-9 {
		t.Errorf("target[AAA] = %v, want -10", target["AAA"])
	}
	if len(active) != 1 || active[0] != "s" {
		t.Errorf("active = %v, want [s]", active)
	}

	// Negative mispricing inverts the legs.
	b := newTestAllocator(t, testConfig())
	warm(t, b, []core.Signal{sig("s", -5, legs)}, prices)
	target, _, err = b.Allocate([]core.Signal{sig("s", -10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(target["AAA"]-10) > 1e-9 {
		t.Errorf("target[AAA] = %v, want +10", target["AAA"])
	}
}

func TestAllocate_ZeroEdgeFlattens(t *testing.T) {
	cfg := testConfig()
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": 1}

	// Entry threshold above the mispricing keeps the edge at zero.
	s1 := core.Signal{Name: "s", SDollars: 5, EntryDollars: 50, Legs: legs}
	s2 := core.Signal{Name: "s", SDollars: 10, EntryDollars: 50, Legs: legs}
	warm(t, a, []core.Signal{s1}, prices)
	target, active, err := a.Allocate([]core.Signal{s2}, prices, map[string]float64{"AAA": 40})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active = %v, want empty", active)
	}
	if target["AAA"] != 0 {
		t.Errorf("target[AAA] = %v, want 0 (flatten)", target["AAA"])
	}
}

func TestAllocate_ShareCapClipsBeforeScaling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxShares = map[string]float64{"AAA": 5}
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": 1}

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	target, _, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(target["AAA"]) > 5+1e-9 {
		t.Errorf("target[AAA] = %v exceeds share cap 5", target["AAA"])
	}
}

func TestAllocate_NetLimitScalesDown(t *testing.T) {
	cfg := testConfig()
	cfg.NetLimit = 300
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": 1}

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	target, _, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	net := target["AAA"] * 100
	if math.Abs(net) > 300+1e-6 {
		t.Errorf("net exposure %v exceeds net limit", net)
	}
	if math.Abs(target["AAA"]-3) > 1e-9 {
		t.Errorf("target[AAA] = %v, want 3 after net scaling", target["AAA"])
	}
}

func TestAllocate_ThrottleReasonsAccumulate(t *testing.T) {
	cfg := testConfig()
	cfg.NetLimit = 300
	cfg.DDThrottleThreshold = 100
	cfg.DDThrottleFactor = 0.5
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": 1}

	a.UpdateNLV(1000)
	a.UpdateNLV(800)

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	if _, _, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{}); err != nil {
		t.Fatal(err)
	}

	// Both throttles fired on the same tick; the trace must show both
	// rather than only the last one applied.
	got := a.Diagnostics().Reasons
	for _, want := range []string{"net_scaled", "dd_throttle"} {
		found := false
		for _, r := range got {
			if r == want {
				found = true
			}
		}
		if !found {
			t.Errorf("reasons %v missing %q", got, want)
		}
	}
}

func TestAllocate_CleanTickReportsOK(t *testing.T) {
	cfg := testConfig()
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": 1}

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	if _, _, err := a.Allocate([]core.Signal{sig("s", 6, legs)}, prices, map[string]float64{}); err != nil {
		t.Fatal(err)
	}
	got := a.Diagnostics().Reasons
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("reasons = %v, want [ok]", got)
	}
}

func TestAllocate_GrossNeverExceedsLimit(t *testing.T) {
	cfg := testConfig()
	cfg.TopN = 2
	cfg.WMax = 1.0
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100, "BBB": 50}
	legsA := map[string]float64{"AAA": 1}
	legsB := map[string]float64{"BBB": -2}

	warm(t, a, []core.Signal{sig("a", 5, legsA), sig("b", 3, legsB)}, prices)
	target, _, err := a.Allocate([]core.Signal{sig("a", 10, legsA), sig("b", 9, legsB)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	gross := 0.0
	for ticker, pos := range target {
		gross += math.Abs(pos * prices[ticker])
	}
	if gross > cfg.GrossLimit+1e-6 {
		t.Errorf("gross %v exceeds limit %v", gross, cfg.GrossLimit)
	}
}

func TestAllocate_TurnoverBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxShares = map[string]float64{"AAA": 100}
	cfg.TurnoverPct = 0.05
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": -1}

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	target, _, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	// Entry budget is 100 * 0.05 = 5 shares per tick.
	if math.Abs(target["AAA"]-(-5)) > 1e-9 {
		t.Errorf("target[AAA] = %v, want -5 under turnover cap", target["AAA"])
	}
}

func TestAllocate_ExitFasterThanEntry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxShares = map[string]float64{"AAA": 100}
	cfg.TurnoverPct = 0.05
	cfg.ExitTurnoverMult = 2.0
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}

	// No signals: raw target is flat, so the move from +10 is pure exit,
	// allowed 100 * 0.05 * 2 = 10 shares in one tick.
	target, _, err := a.Allocate(nil, prices, map[string]float64{"AAA": 10})
	if err != nil {
		t.Fatal(err)
	}
	if target["AAA"] != 0 {
		t.Errorf("target[AAA] = %v, want 0 (full exit in one tick)", target["AAA"])
	}
}

func TestAllocate_SignFlipExitsBeforeEntering(t *testing.T) {
	cfg := testConfig()
	cfg.MaxShares = map[string]float64{"AAA": 100}
	cfg.TurnoverPct = 0.05
	cfg.ExitTurnoverMult = 1.0
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": -1}

	// Desired target is short; starting long 20 with exit budget 5 per
	// tick, this tick can only shrink toward zero.
	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	target, _, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{"AAA": 20})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(target["AAA"]-15) > 1e-9 {
		t.Errorf("target[AAA] = %v, want 15 (exit leg of the flip)", target["AAA"])
	}
}

func TestAllocate_DrawdownThrottlesEntryOnly(t *testing.T) {
	cfg := testConfig()
	cfg.MaxShares = map[string]float64{"AAA": 100}
	cfg.TurnoverPct = 0.05
	cfg.ExitTurnoverMult = 2.0
	cfg.DDThrottleThreshold = 100
	cfg.DDThrottleFactor = 0.5
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"AAA": -1}

	a.UpdateNLV(1000)
	a.UpdateNLV(800) // drawdown 200 > threshold

	warm(t, a, []core.Signal{sig("s", 5, legs)}, prices)
	target, _, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	// Entry budget halves to 2.5; note the throttle never touches exits.
	if math.Abs(target["AAA"]-(-2.5)) > 1e-9 {
		t.Errorf("target[AAA] = %v, want -2.5 under drawdown throttle", target["AAA"])
	}

	exit, _, err := a.Allocate(nil, prices, map[string]float64{"AAA": 10})
	if err != nil {
		t.Fatal(err)
	}
	if exit["AAA"] != 0 {
		t.Errorf("exit target = %v, want 0 (exit budget unthrottled)", exit["AAA"])
	}
}

func TestAllocate_RegimeFilterZeroesOutliers(t *testing.T) {
	cfg := testConfig()
	cfg.RegimeCutoff = 2.0
	cfg.TopN = 3
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100, "BBB": 100}

	first := []core.Signal{
		sig("wild", 0, map[string]float64{"AAA": 1}),
		sig("calm1", 0, map[string]float64{"BBB": 1}),
		sig("calm2", 0, map[string]float64{"BBB": -1}),
	}
	second := []core.Signal{
		sig("wild", 50, map[string]float64{"AAA": 1}),
		sig("calm1", 0.1, map[string]float64{"BBB": 1}),
		sig("calm2", 0.1, map[string]float64{"BBB": -1}),
	}
	warm(t, a, first, prices)
	if _, _, err := a.Allocate(second, prices, map[string]float64{}); err != nil {
		t.Fatal(err)
	}
	d := a.Diagnostics()
	if d.Edges["wild"] != 0 {
		t.Errorf("edge[wild] = %v, want 0 (regime filtered)", d.Edges["wild"])
	}
	if d.Edges["calm1"] <= 0 {
		t.Errorf("edge[calm1] = %v, want positive", d.Edges["calm1"])
	}
}

func TestAllocate_SkipsUnpricedSignal(t *testing.T) {
	a := newTestAllocator(t, testConfig())
	prices := map[string]float64{"AAA": 100}
	legs := map[string]float64{"ZZZ": 1}

	target, active, err := a.Allocate([]core.Signal{sig("s", 10, legs)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 || len(target) != 0 {
		t.Errorf("unpriced signal should be skipped: target=%v active=%v", target, active)
	}
}

func TestAllocate_NoPricesFails(t *testing.T) {
	a := newTestAllocator(t, testConfig())
	if _, _, err := a.Allocate(nil, nil, nil); err == nil {
		t.Error("expected error for empty prices")
	}
}

func TestAllocate_VolScaleClampsLow(t *testing.T) {
	cfg := testConfig()
	cfg.TargetVol = 1
	cfg.VolHalflife = 2
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100}

	positions := []float64{0, 100, 0, 100, 0, 100}
	for _, p := range positions {
		if _, _, err := a.Allocate(nil, prices, map[string]float64{"AAA": p}); err != nil {
			t.Fatal(err)
		}
	}
	// Portfolio value swings 10000 per tick against a target vol of 1:
	// the scale pins at the lower clamp.
	if d := a.Diagnostics(); math.Abs(d.VolScale-0.25) > 1e-9 {
		t.Errorf("vol scale = %v, want 0.25", d.VolScale)
	}
}

func TestAllocate_SwitchingPreventsFlap(t *testing.T) {
	cfg := testConfig()
	cfg.SwitchLambda = 0.10
	cfg.TopN = 2
	a := newTestAllocator(t, cfg)
	prices := map[string]float64{"AAA": 100, "BBB": 100}
	legsA := map[string]float64{"AAA": 1}
	legsB := map[string]float64{"BBB": 1}

	// Build equal sigmas for both, then give A the first tick's edge so it
	// becomes the incumbent.
	warm(t, a, []core.Signal{sig("A", 0, legsA), sig("B", 0, legsB)}, prices)
	if _, _, err := a.Allocate([]core.Signal{sig("A", 10, legsA), sig("B", 0, legsB)}, prices, map[string]float64{}); err != nil {
		t.Fatal(err)
	}
	if w := a.Diagnostics().Weights["A"]; math.Abs(w-1.0) > 1e-9 {
		t.Fatalf("incumbent weight = %v, want 1", w)
	}

	// B pulls slightly ahead; inside the 2*lambda band the incumbent holds.
	_, active, err := a.Allocate([]core.Signal{sig("A", 10, legsA), sig("B", 0.5, legsB)}, prices, map[string]float64{})
	if err != nil {
		t.Fatal(err)
	}
	d := a.Diagnostics()
	if d.Edges["B"]-d.Edges["A"] > 2*cfg.SwitchLambda {
		if math.Abs(d.Weights["B"]-1.0) > 1e-9 {
			t.Errorf("challenger clear of the penalty band should take the weight: %v (active %v)", d.Weights, active)
		}
	} else {
		if math.Abs(d.Weights["A"]-1.0) > 1e-9 {
			t.Errorf("weights flapped inside the penalty band: %v (active %v)", d.Weights, active)
		}
	}
}
