package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"spread_trader/internal/allocation"
	"spread_trader/internal/bootstrap"
	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/engine"
	"spread_trader/internal/infrastructure/metrics"
	"spread_trader/internal/market"
	"spread_trader/internal/monitor"
	"spread_trader/internal/orders"
	"spread_trader/internal/recorder"
	"spread_trader/internal/safety"
	"spread_trader/internal/strategy"
	"spread_trader/internal/venue/rit"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	dryRun     = flag.Bool("dry-run", false, "Compute targets without submitting orders")
)

func main() {
	flag.Parse()

	app, err := bootstrap.NewApp(*configFile, "spread_trader")
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := app.Cfg, app.Logger
	if *dryRun {
		cfg.App.DryRun = true
	}

	logger.Info("starting trader", "dry_run", cfg.App.DryRun)
	logger.Debug("effective configuration", "config", cfg.String())

	venue := rit.NewClient(cfg.Venue, logger)

	// Pre-flight: refuse to trade against a venue we cannot reconcile with.
	preflight, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	checker := safety.NewSafetyChecker(logger)
	if err := checker.CheckVenue(preflight, venue, cfg); err != nil {
		cancel()
		logger.Fatal("venue pre-flight check failed", "error", err)
	}
	cs, err := venue.GetCase(preflight)
	cancel()
	if err != nil {
		logger.Fatal("case query failed", "error", err)
	}

	allocator, err := allocation.New(cfg.Allocator, logger)
	if err != nil {
		logger.Fatal("allocator init failed", "error", err)
	}
	manager := orders.NewManager(venue, cfg.Orders, logger)

	strategies := buildStrategies(cfg)
	if len(strategies) == 0 {
		logger.Fatal("no strategies enabled")
	}
	for _, s := range strategies {
		logger.Info("strategy enabled", "name", s.Name())
	}

	var runners []bootstrap.Runner

	var rec core.ITickRecorder
	if cfg.Recorder.Enabled {
		r, err := recorder.New(cfg.Recorder, venue, cs.Name, market.AllTickers(), logger)
		if err != nil {
			logger.Fatal("recorder init failed", "error", err)
		}
		defer r.Close()
		rec = r
		manager.SetEventRecorder(r)
		logger.Info("session recording enabled", "session_id", r.SessionID())
	}

	var sink engine.DiagSink
	if cfg.Monitor.Enabled {
		hub := monitor.NewHub(logger)
		srv := monitor.NewServer(hub, cfg.Monitor.Port, logger)
		sink = hub
		runners = append(runners,
			bootstrap.RunnerFunc(func(ctx context.Context) error {
				hub.Run(ctx)
				return nil
			}),
			srv,
		)
	}

	if cfg.Telemetry.EnableMetrics {
		metricsSrv := metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		runners = append(runners, bootstrap.RunnerFunc(func(ctx context.Context) error {
			metricsSrv.Start()
			<-ctx.Done()
			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return metricsSrv.Stop(stopCtx)
		}))
	}

	eng := engine.New(engine.Options{
		Venue:      venue,
		Allocator:  allocator,
		Manager:    manager,
		Strategies: strategies,
		Recorder:   rec,
		Sink:       sink,
		Logger:     logger,
		AppConfig:  cfg.App,
	})
	runners = append(runners, eng)

	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		app.Shutdown(shutdownCtx)
	}()

	if err := app.Run(runners...); err != nil {
		os.Exit(1)
	}
}

func buildStrategies(cfg *config.Config) []core.ISignalSource {
	var out []core.ISignalSource
	for _, pc := range cfg.Strategies.Pairs {
		if pc.Enabled {
			out = append(out, strategy.NewPairCoint(pc, cfg.Width))
		}
	}
	if bn := cfg.Strategies.BasketNav; bn != nil && bn.Enabled {
		out = append(out, strategy.NewBasketNav(*bn, cfg.Width))
	}
	return out
}
