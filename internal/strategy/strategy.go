// Package strategy holds the signal sources: per-tick computations that
// turn the quote snapshot into mispricing signals for the allocator.
package strategy

import "spread_trader/internal/core"

// seasonalAdjuster removes intraday seasonality from a raw series by
// subtracting an expanding mean per tick index. The simulated session
// repeats, so a spread can have a systematic shape across the day that
// should not be traded as mispricing.
type seasonalAdjuster struct {
	sums   map[int]float64
	counts map[int]int
}

func newSeasonalAdjuster() *seasonalAdjuster {
	return &seasonalAdjuster{
		sums:   make(map[int]float64),
		counts: make(map[int]int),
	}
}

// Adjust subtracts the mean of prior observations at this tick index and
// then folds the new observation in. With no history the raw value passes
// through unchanged.
func (s *seasonalAdjuster) Adjust(tick int, raw float64) float64 {
	adjusted := raw
	if n := s.counts[tick]; n > 0 {
		adjusted = raw - s.sums[tick]/float64(n)
	}
	s.sums[tick] += raw
	s.counts[tick]++
	return adjusted
}

// midPrice returns the usable mid for a ticker, or false when the quote is
// missing or non-positive.
func midPrice(snapshot map[string]core.Security, ticker string) (float64, bool) {
	sec, ok := snapshot[ticker]
	if !ok {
		return 0, false
	}
	mid := sec.Mid()
	if mid <= 0 {
		return 0, false
	}
	return mid, true
}
