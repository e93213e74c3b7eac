// Command record captures venue ticks and order books to a session
// database without trading. The output feeds the replay command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"spread_trader/internal/bootstrap"
	"spread_trader/internal/core"
	"spread_trader/internal/market"
	"spread_trader/internal/recorder"
	"spread_trader/internal/venue/rit"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	app, err := bootstrap.NewApp(*configFile, "spread_recorder")
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := app.Cfg, app.Logger

	venue := rit.NewClient(cfg.Venue, logger)

	startup, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	cs, err := venue.GetCase(startup)
	cancel()
	if err != nil {
		logger.Fatal("case query failed", "error", err)
	}

	recCfg := cfg.Recorder
	recCfg.Enabled = true
	rec, err := recorder.New(recCfg, venue, cs.Name, market.AllTickers(), logger)
	if err != nil {
		logger.Fatal("recorder init failed", "error", err)
	}
	defer rec.Close()

	logger.Info("recording session", "case", cs.Name, "session_id", rec.SessionID())

	poll := time.Duration(cfg.App.PollIntervalMs) * time.Millisecond
	err = app.Run(bootstrap.RunnerFunc(func(ctx context.Context) error {
		return record(ctx, venue, rec, logger, poll)
	}))

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	app.Shutdown(shutdownCtx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func record(ctx context.Context, venue core.IVenue, rec core.ITickRecorder, logger core.ILogger, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lastPeriod, lastTick := -1, -1
	for {
		cs, err := venue.GetCase(ctx)
		switch {
		case err != nil:
			logger.Error("case query failed", "error", err)
		case cs.Status != core.CaseActive:
			logger.Debug("session not active", "status", string(cs.Status))
		case cs.Period == lastPeriod && cs.Tick == lastTick:
			// Same tick, nothing new to capture.
		default:
			if err := captureTick(ctx, venue, rec, cs); err != nil {
				logger.Error("tick capture failed", "period", cs.Period, "tick", cs.Tick, "error", err)
			} else {
				lastPeriod, lastTick = cs.Period, cs.Tick
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("recorder stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func captureTick(ctx context.Context, venue core.IVenue, rec core.ITickRecorder, cs *core.Case) error {
	snapshot, err := venue.GetSnapshot(ctx)
	if err != nil {
		return err
	}
	nlv, err := venue.GetNLV(ctx)
	if err != nil {
		return err
	}
	return rec.RecordTick(ctx, cs, snapshot, nlv)
}
