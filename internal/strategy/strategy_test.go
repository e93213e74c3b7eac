package strategy

import (
	"math"
	"testing"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
)

func snap(prices map[string]float64) map[string]core.Security {
	out := make(map[string]core.Security, len(prices))
	for t, p := range prices {
		out[t] = core.Security{Ticker: t, Bid: p, Ask: p, Last: p}
	}
	return out
}

func TestSeasonalAdjuster(t *testing.T) {
	s := newSeasonalAdjuster()
	if got := s.Adjust(10, 5.0); got != 5.0 {
		t.Errorf("first observation = %v, want raw passthrough", got)
	}
	// Second period at the same tick: mean so far is 5.
	if got := s.Adjust(10, 7.0); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("adjusted = %v, want 2", got)
	}
	// Different tick index has its own mean.
	if got := s.Adjust(11, 7.0); got != 7.0 {
		t.Errorf("new tick index = %v, want raw passthrough", got)
	}
}

func TestPairCoint_Signal(t *testing.T) {
	p := NewPairCoint(config.PairConfig{
		A: "AAA", B: "BBB", C: 0, Beta: 1, Std: 0.01, EntryStd: 1.5, Enabled: true,
	}, map[string]float64{"AAA": 0.02, "BBB": 0.02})

	// log(110) - log(100) > 0: AAA rich against BBB.
	sig, err := p.ComputeSignal(snap(map[string]float64{"AAA": 110, "BBB": 100}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.SDollars <= 0 {
		t.Errorf("s_dollars = %v, want positive for rich AAA", sig.SDollars)
	}
	if sig.Legs["AAA"] != -1 {
		t.Errorf("legs[AAA] = %v, want -1", sig.Legs["AAA"])
	}
	wantHedge := 1.0 * 110 / 100
	if math.Abs(sig.Legs["BBB"]-wantHedge) > 1e-12 {
		t.Errorf("legs[BBB] = %v, want %v", sig.Legs["BBB"], wantHedge)
	}
	wantEntry := 1.5 * 0.01 * 110
	if math.Abs(sig.EntryDollars-wantEntry) > 1e-12 {
		t.Errorf("entry = %v, want %v", sig.EntryDollars, wantEntry)
	}
	if sig.RTCostDollars <= 0 {
		t.Error("round-trip cost should be positive with configured widths")
	}
}

func TestPairCoint_MissingQuote(t *testing.T) {
	p := NewPairCoint(config.PairConfig{A: "AAA", B: "BBB", Beta: 1, Std: 0.01, EntryStd: 1}, nil)
	sig, err := p.ComputeSignal(snap(map[string]float64{"AAA": 110}), nil)
	if err != nil || sig != nil {
		t.Errorf("want nil signal and nil error on missing quote, got %v, %v", sig, err)
	}
}

func TestPairCoint_EntryAbsOverridesEntryStd(t *testing.T) {
	p := NewPairCoint(config.PairConfig{
		A: "AAA", B: "BBB", Beta: 1, Std: 0.01, EntryStd: 1.5, EntryAbs: 0.4,
	}, nil)
	sig, err := p.ComputeSignal(snap(map[string]float64{"AAA": 110, "BBB": 100}), nil)
	if err != nil || sig == nil {
		t.Fatalf("signal: %v, %v", sig, err)
	}
	if sig.EntryDollars != 0.4 {
		t.Errorf("entry = %v, want entry_abs 0.4", sig.EntryDollars)
	}
}

func TestBasketNav_Signal(t *testing.T) {
	b := NewBasketNav(config.BasketNavConfig{EntryDollars: 0.1}, map[string]float64{
		"AAA": 0.02, "BBB": 0.02, "CCC": 0.02, "DDD": 0.02, "ETF": 0.03,
	})
	prices := snap(map[string]float64{
		"AAA": 10, "BBB": 20, "CCC": 30, "DDD": 40, // NAV 25
		"ETF": 26,
	})
	sig, err := b.ComputeSignal(prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if math.Abs(sig.SDollars-1.0) > 1e-9 {
		t.Errorf("s_dollars = %v, want 1.0 (ETF rich by 1)", sig.SDollars)
	}
	if sig.Legs["ETF"] != -1 {
		t.Errorf("legs[ETF] = %v, want -1", sig.Legs["ETF"])
	}
	for _, s := range []string{"AAA", "BBB", "CCC", "DDD"} {
		if math.Abs(sig.Legs[s]-0.25) > 1e-12 {
			t.Errorf("legs[%s] = %v, want 0.25", s, sig.Legs[s])
		}
	}
}

func TestBasketNav_MissingComponent(t *testing.T) {
	b := NewBasketNav(config.BasketNavConfig{EntryDollars: 0.1}, nil)
	prices := snap(map[string]float64{"AAA": 10, "ETF": 26})
	sig, err := b.ComputeSignal(prices, nil)
	if err != nil || sig != nil {
		t.Errorf("want nil signal on missing component, got %v, %v", sig, err)
	}
}

func TestPairCoint_SeasonalUsesTickIndex(t *testing.T) {
	p := NewPairCoint(config.PairConfig{A: "AAA", B: "BBB", Beta: 1, Std: 0.01, EntryStd: 1}, nil)
	prices := snap(map[string]float64{"AAA": 110, "BBB": 100})
	cs := &core.Case{Tick: 5}

	first, err := p.ComputeSignal(prices, cs)
	if err != nil || first == nil {
		t.Fatalf("signal: %v, %v", first, err)
	}
	// Same prices at the same tick index next period: the expanding mean
	// absorbs the level, so the residual collapses toward zero.
	second, err := p.ComputeSignal(prices, cs)
	if err != nil || second == nil {
		t.Fatalf("signal: %v, %v", second, err)
	}
	if math.Abs(second.SDollars) >= math.Abs(first.SDollars) {
		t.Errorf("seasonal adjustment should shrink a repeated residual: %v -> %v", first.SDollars, second.SDollars)
	}
}
