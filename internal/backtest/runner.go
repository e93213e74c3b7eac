package backtest

import (
	"context"
	"fmt"
	"math"

	"spread_trader/internal/allocation"
	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/engine"
	"spread_trader/internal/orders"
	"spread_trader/internal/recorder"
)

// Report summarizes one replay.
type Report struct {
	Ticks       int
	StartNLV    float64
	FinalNLV    float64
	PnL         float64
	MaxDrawdown float64
	Positions   map[string]float64
}

// Runner replays a recorded session tick by tick through a fresh engine.
type Runner struct {
	cfg    *config.Config
	logger core.ILogger
}

func NewRunner(cfg *config.Config, logger core.ILogger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// Replay runs the engine over the recorded ticks with simulated fills.
func (r *Runner) Replay(ctx context.Context, ticks []recorder.RecordedTick, strategies []core.ISignalSource, startingCash float64) (*Report, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("replay: no recorded ticks")
	}

	venue := NewSimVenue(startingCash)
	alloc, err := allocation.New(r.cfg.Allocator, r.logger)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Options{
		Venue:      venue,
		Allocator:  alloc,
		Manager:    orders.NewManager(venue, r.cfg.Orders, r.logger),
		Strategies: strategies,
		Logger:     r.logger,
		AppConfig:  r.cfg.App,
	})

	report := &Report{StartNLV: startingCash}
	peak := startingCash

	for _, rt := range ticks {
		cs := core.Case{
			Period: rt.Period,
			Tick:   rt.Tick,
			Status: core.CaseActive,
		}
		venue.SetTick(cs, rt.Snapshot)

		if err := eng.Tick(ctx, &cs); err != nil {
			r.logger.Warn("replay tick failed", "period", rt.Period, "tick", rt.Tick, "error", err)
			continue
		}
		report.Ticks++

		nlv, _ := venue.GetNLV(ctx)
		if nlv > peak {
			peak = nlv
		}
		report.MaxDrawdown = math.Max(report.MaxDrawdown, peak-nlv)
	}

	final, _ := venue.GetNLV(ctx)
	report.FinalNLV = final
	report.PnL = final - startingCash
	report.Positions = venue.Positions()
	return report, nil
}
