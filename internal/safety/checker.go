// Package safety provides pre-flight validation before the engine starts
// trading a session.
package safety

import (
	"context"
	"fmt"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/market"
	"spread_trader/pkg/retry"
)

// SafetyChecker validates venue connectivity and case configuration
type SafetyChecker struct {
	logger core.ILogger
}

// NewSafetyChecker creates a new safety checker
func NewSafetyChecker(logger core.ILogger) *SafetyChecker {
	return &SafetyChecker{logger: logger}
}

// CheckVenue performs the startup checks: the venue answers, the case
// universe contains the instruments the configuration trades, and the
// configured limits fit inside the exchange limits.
func (s *SafetyChecker) CheckVenue(ctx context.Context, venue core.IVenue, cfg *config.Config) error {
	s.logger.Info("starting venue safety check")

	// 1. Connectivity. The simulator may still be starting, so retry
	// transient failures before giving up.
	var cs *core.Case
	transient := func(error) bool { return true }
	err := retry.Do(ctx, retry.DefaultPolicy, transient, func() error {
		var err error
		cs, err = venue.GetCase(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("venue unreachable: %w", err)
	}
	s.logger.Info("venue reachable", "case", cs.Name, "status", string(cs.Status))

	// 2. Every configured instrument must be quoted.
	snapshot, err := venue.GetSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch securities: %w", err)
	}
	for ticker := range cfg.Allocator.MaxShares {
		if _, ok := snapshot[ticker]; !ok {
			return fmt.Errorf("configured instrument %s not quoted by the venue", ticker)
		}
		if !market.IsTradable(ticker) {
			return fmt.Errorf("configured instrument %s is outside the case universe", ticker)
		}
	}

	// 3. Configured limits must not exceed the exchange-side limits, or
	// every submission near the budget would bounce.
	limits := market.DefaultLimits()
	if cfg.Allocator.GrossLimit > limits.MaxGross {
		return fmt.Errorf("gross limit %.0f exceeds the exchange gross limit %.0f",
			cfg.Allocator.GrossLimit, limits.MaxGross)
	}
	if cfg.Allocator.NetLimit > limits.MaxNet {
		return fmt.Errorf("net limit %.0f exceeds the exchange net limit %.0f",
			cfg.Allocator.NetLimit, limits.MaxNet)
	}

	// 4. A pre-existing book must itself fit inside the exchange limits;
	// otherwise every entry this engine submits would bounce from the
	// first tick.
	positions := make(map[string]float64, len(snapshot))
	for ticker, sec := range snapshot {
		positions[ticker] = sec.Position
	}
	exposure := market.ComputeExposure(positions, snapshot)
	if !limits.Check(exposure) {
		return fmt.Errorf("existing positions already violate exchange limits: gross %.0f, net %.0f",
			exposure.Gross, exposure.Net)
	}
	headroom := limits.Headroom(exposure)
	if cfg.Allocator.GrossLimit > headroom {
		s.logger.Warn("configured gross budget exceeds current exchange headroom; entries will throttle until exits free it",
			"budget", cfg.Allocator.GrossLimit, "headroom", headroom)
	}

	// 5. The account must answer with a usable NLV.
	nlv, err := venue.GetNLV(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch trader info: %w", err)
	}
	s.logger.Info("venue safety check passed",
		"nlv", nlv, "instruments", len(snapshot), "gross_headroom", headroom)
	return nil
}
