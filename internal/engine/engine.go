// Package engine runs the per-tick control loop: snapshot, refresh,
// signals, allocation, reconciliation, diagnostics.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"spread_trader/internal/allocation"
	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/market"
	"spread_trader/internal/orders"
	"spread_trader/pkg/telemetry"
)

// slippage applied to the mid when pricing limit orders, so deltas cross
// the spread instead of resting forever.
const limitPriceSlip = 0.001

// TickReport is the per-tick diagnostics bundle published to the recorder
// and the live monitor.
type TickReport struct {
	Period      int                     `json:"period"`
	Tick        int                     `json:"tick"`
	NLV         float64                 `json:"nlv"`
	Targets     map[string]float64      `json:"targets"`
	Positions   map[string]float64      `json:"positions"`
	Active      []string                `json:"active"`
	Diagnostics allocation.Diagnostics  `json:"diagnostics"`
	Outstanding []orders.TrackedOrder   `json:"outstanding"`
	Exposure    market.Exposure         `json:"exposure"`
}

// DiagSink receives tick reports. Implementations must not block.
type DiagSink interface {
	Publish(report TickReport)
}

// Engine owns one trading session's control loop.
type Engine struct {
	venue      core.IVenue
	allocator  *allocation.Allocator
	manager    *orders.Manager
	strategies []core.ISignalSource
	recorder   core.ITickRecorder
	sink       DiagSink
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder

	pollInterval time.Duration
	dryRun       bool
}

type Options struct {
	Venue      core.IVenue
	Allocator  *allocation.Allocator
	Manager    *orders.Manager
	Strategies []core.ISignalSource
	Recorder   core.ITickRecorder
	Sink       DiagSink
	Logger     core.ILogger
	Metrics    *telemetry.MetricsHolder
	AppConfig  config.AppConfig
}

func New(opts Options) *Engine {
	if opts.Metrics == nil {
		opts.Metrics = telemetry.GetGlobalMetrics()
	}
	return &Engine{
		venue:        opts.Venue,
		allocator:    opts.Allocator,
		manager:      opts.Manager,
		strategies:   opts.Strategies,
		recorder:     opts.Recorder,
		sink:         opts.Sink,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		pollInterval: time.Duration(opts.AppConfig.PollIntervalMs) * time.Millisecond,
		dryRun:       opts.AppConfig.DryRun,
	}
}

// Run polls the venue until the context is cancelled. A bad tick is logged
// and the loop continues; only cancellation stops it.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "poll_interval", e.pollInterval.String(), "dry_run", e.dryRun)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		cs, err := e.venue.GetCase(ctx)
		if err != nil {
			e.logger.Error("case query failed", "error", err)
		} else if cs.Status != core.CaseActive {
			e.logger.Debug("session not active", "status", string(cs.Status))
		} else if err := e.Tick(ctx, cs); err != nil {
			e.logger.Error("tick failed", "period", cs.Period, "tick", cs.Tick, "error", err)
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick processes one polling cycle end to end.
func (e *Engine) Tick(ctx context.Context, cs *core.Case) error {
	start := time.Now()
	defer func() {
		e.metrics.ObserveTickLatency(ctx, float64(time.Since(start).Milliseconds()))
	}()
	e.metrics.IncTicks(ctx)

	snapshot, err := e.venue.GetSnapshot(ctx)
	if err != nil {
		return err
	}

	nlv, err := e.venue.GetNLV(ctx)
	if err != nil {
		e.logger.Warn("nlv query failed", "error", err)
	} else {
		e.allocator.UpdateNLV(nlv)
	}
	return e.runCycle(ctx, cs, snapshot, nlv)
}

func (e *Engine) runCycle(ctx context.Context, cs *core.Case, snapshot map[string]core.Security, nlv float64) error {
	if err := e.manager.Refresh(ctx, cs); err != nil {
		return err
	}

	signals := e.collectSignals(snapshot, cs)

	prices := make(map[string]float64, len(snapshot))
	positions := make(map[string]float64, len(snapshot))
	for ticker, sec := range snapshot {
		if mid := sec.Mid(); mid > 0 {
			prices[ticker] = mid
		}
		positions[ticker] = sec.Position
	}

	targets, active, err := e.allocator.Allocate(signals, prices, positions)
	if err != nil {
		return err
	}

	intents := e.buildIntents(targets, positions, snapshot)
	if e.dryRun {
		e.logger.Info("dry run, skipping reconciliation", "intents", len(intents), "active", active)
	} else if err := e.manager.Reconcile(ctx, cs, intents); err != nil {
		return err
	}

	e.publish(ctx, cs, snapshot, nlv, targets, positions, active)
	return nil
}

func (e *Engine) collectSignals(snapshot map[string]core.Security, cs *core.Case) []core.Signal {
	var out []core.Signal
	for _, s := range e.strategies {
		sig, err := s.ComputeSignal(snapshot, cs)
		if err != nil {
			e.logger.Warn("signal computation failed", "signal", s.Name(), "error", err)
			continue
		}
		if sig == nil {
			continue
		}
		out = append(out, *sig)
	}
	return out
}

// buildIntents converts target-position deltas into desired resting orders.
// Sub-share deltas produce no intent; the venue only accepts whole shares.
//
// The delta is measured against the venue position. In-flight orders only
// shrink the quantity of a new order so a partial fill is not ordered
// twice; they never suppress the intent itself, because a vanished intent
// would make the manager cancel its own still-wanted resting order and
// resubmit it every tick.
func (e *Engine) buildIntents(targets, positions map[string]float64, snapshot map[string]core.Security) map[string]core.OrderIntent {
	inflight := e.manager.EffectivePositionAdjustments()

	intents := make(map[string]core.OrderIntent)
	for ticker, target := range targets {
		sec, ok := snapshot[ticker]
		if !ok {
			continue
		}
		mid := sec.Mid()
		if mid <= 0 {
			continue
		}
		delta := target - positions[ticker]
		if math.Abs(delta) < 1 {
			continue
		}
		buying := delta > 0

		// In-flight exposure already working toward the target.
		cover := inflight[ticker]
		if (cover > 0) != buying {
			cover = 0
		}
		remaining := delta - cover

		qty := math.Floor(math.Abs(remaining))
		switch {
		case (remaining > 0) == buying && qty >= 1:
			// Resting orders cover part of the move; size the new order
			// for the rest.
		case math.Abs(remaining) < 1:
			// Resting orders cover the whole move. Keep the same-side
			// intent alive so the manager leaves them in place.
			qty = math.Floor(math.Abs(delta))
		default:
			// Resting orders overshoot a reduced target; drop the intent
			// so they are cancelled and resized on a later pass.
			continue
		}

		side := core.SideBuy
		price := mid * (1 + limitPriceSlip)
		if !buying {
			side = core.SideSell
			price = mid * (1 - limitPriceSlip)
		}
		intents[ticker] = core.OrderIntent{
			Side:     side,
			Quantity: decimal.NewFromFloat(qty),
			Price:    decimal.NewFromFloat(price).Round(2),
		}
	}
	return intents
}

func (e *Engine) publish(ctx context.Context, cs *core.Case, snapshot map[string]core.Security, nlv float64, targets, positions map[string]float64, active []string) {
	diag := e.allocator.Diagnostics()
	exposure := market.ComputeExposure(targets, snapshot)

	e.metrics.SetExposure(exposure.Gross, exposure.Net)
	e.metrics.SetVolScale(diag.VolScale)
	e.metrics.SetDrawdown(diag.Drawdown)
	for ticker, shares := range targets {
		e.metrics.SetTargetPosition(ticker, shares)
	}
	for name, edge := range diag.Edges {
		e.metrics.SetSignal(name, edge, diag.Weights[name])
	}

	if e.recorder != nil {
		if err := e.recorder.RecordTick(ctx, cs, snapshot, nlv); err != nil {
			e.logger.Warn("tick recording failed", "error", err)
		}
	}
	if e.sink != nil {
		e.sink.Publish(TickReport{
			Period:      cs.Period,
			Tick:        cs.Tick,
			NLV:         nlv,
			Targets:     targets,
			Positions:   positions,
			Active:      active,
			Diagnostics: diag,
			Outstanding: e.manager.Outstanding(),
			Exposure:    exposure,
		})
	}
}
