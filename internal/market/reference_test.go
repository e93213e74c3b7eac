package market

import (
	"math"
	"testing"

	"spread_trader/internal/core"
)

func snap(prices map[string]float64) map[string]core.Security {
	out := make(map[string]core.Security, len(prices))
	for t, p := range prices {
		out[t] = core.Security{Ticker: t, Bid: p - 0.01, Ask: p + 0.01, Last: p}
	}
	return out
}

func TestNAV(t *testing.T) {
	s := snap(map[string]float64{"AAA": 10, "BBB": 20, "CCC": 30, "DDD": 40})
	nav, ok := NAV(s)
	if !ok {
		t.Fatal("NAV should be computable")
	}
	if math.Abs(nav-25) > 1e-9 {
		t.Errorf("NAV = %v, want 25", nav)
	}
}

func TestNAV_MissingComponent(t *testing.T) {
	s := snap(map[string]float64{"AAA": 10, "BBB": 20, "CCC": 30})
	if _, ok := NAV(s); ok {
		t.Error("NAV should not be computable with a missing component")
	}
}

func TestComputeExposure(t *testing.T) {
	s := snap(map[string]float64{"AAA": 100, "BBB": 50})
	e := ComputeExposure(map[string]float64{"AAA": 1000, "BBB": -500}, s)
	if math.Abs(e.Gross-125_000) > 1e-6 {
		t.Errorf("gross = %v, want 125000", e.Gross)
	}
	if math.Abs(e.Net-75_000) > 1e-6 {
		t.Errorf("net = %v, want 75000", e.Net)
	}
}

func TestComputeExposure_IgnoresUnquoted(t *testing.T) {
	s := snap(map[string]float64{"AAA": 100})
	e := ComputeExposure(map[string]float64{"AAA": 100, "ZZZ": 1e9}, s)
	if math.Abs(e.Gross-10_000) > 1e-6 {
		t.Errorf("gross = %v, want 10000", e.Gross)
	}
}

func TestLimitsCheck(t *testing.T) {
	l := DefaultLimits()
	if !l.Check(Exposure{Gross: 49_000_000, Net: -9_000_000}) {
		t.Error("exposure inside limits should pass")
	}
	if l.Check(Exposure{Gross: 51_000_000, Net: 0}) {
		t.Error("gross breach should fail")
	}
	if l.Check(Exposure{Gross: 20_000_000, Net: -11_000_000}) {
		t.Error("net breach should fail on absolute value")
	}
}

func TestIsTradable(t *testing.T) {
	for _, tk := range AllTickers() {
		if !IsTradable(tk) {
			t.Errorf("%s should be tradable", tk)
		}
	}
	if IsTradable("XYZ") {
		t.Error("XYZ should not be tradable")
	}
}
