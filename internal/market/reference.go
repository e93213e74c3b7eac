// Package market describes the simulated multi-asset case: the tradable
// instruments, the basket NAV relationship, and the exchange exposure rules.
package market

import (
	"math"

	"spread_trader/internal/core"
)

// The case universe. Four stocks, an exchange-traded basket over them, and a
// broad index future.
var (
	Stocks      = []string{"AAA", "BBB", "CCC", "DDD"}
	BasketETF   = "ETF"
	IndexFuture = "IND"
)

// AllTickers returns every tradable instrument in the case.
func AllTickers() []string {
	out := make([]string, 0, len(Stocks)+2)
	out = append(out, Stocks...)
	out = append(out, BasketETF, IndexFuture)
	return out
}

// IsTradable reports whether ticker belongs to the case universe.
func IsTradable(ticker string) bool {
	if ticker == BasketETF || ticker == IndexFuture {
		return true
	}
	for _, s := range Stocks {
		if s == ticker {
			return true
		}
	}
	return false
}

// NAV returns the fair value of one basket unit: the equal-weighted mean of
// the component stock mids. The second return is false when any component
// quote is missing.
func NAV(snapshot map[string]core.Security) (float64, bool) {
	sum := 0.0
	for _, s := range Stocks {
		sec, ok := snapshot[s]
		if !ok {
			return 0, false
		}
		mid := sec.Mid()
		if mid <= 0 {
			return 0, false
		}
		sum += mid
	}
	return sum / float64(len(Stocks)), true
}

// Exposure holds the dollar gross and net exposure of a position book.
type Exposure struct {
	Gross float64
	Net   float64
}

// ComputeExposure prices positions at mid and sums absolute and signed
// notionals. Instruments missing from the snapshot contribute nothing;
// the exchange computes limits only over quoted instruments.
func ComputeExposure(positions map[string]float64, snapshot map[string]core.Security) Exposure {
	var e Exposure
	for ticker, pos := range positions {
		sec, ok := snapshot[ticker]
		if !ok {
			continue
		}
		mid := sec.Mid()
		notional := pos * mid
		e.Gross += math.Abs(notional)
		e.Net += notional
	}
	return e
}

// Limits is the exchange-side exposure constraint. Orders that would push
// the book past either bound are rejected by the venue, not by us; this
// mirror exists so the allocator can stay inside them proactively.
type Limits struct {
	MaxGross float64
	MaxNet   float64
}

// DefaultLimits matches the standard case configuration.
func DefaultLimits() Limits {
	return Limits{MaxGross: 50_000_000, MaxNet: 10_000_000}
}

// Check reports whether the exposure fits inside the limits.
func (l Limits) Check(e Exposure) bool {
	return e.Gross <= l.MaxGross && math.Abs(e.Net) <= l.MaxNet
}

// Headroom returns how many more dollars of gross exposure can be added
// before the gross limit binds. Never negative.
func (l Limits) Headroom(e Exposure) float64 {
	h := l.MaxGross - e.Gross
	if h < 0 {
		return 0
	}
	return h
}
