// Command replay runs recorded sessions through the allocation engine
// with simulated fills and prints the resulting performance summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"spread_trader/internal/backtest"
	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/recorder"
	"spread_trader/internal/strategy"
	"spread_trader/pkg/logging"
)

var (
	configFile   = flag.String("config", "configs/config.yaml", "Path to configuration file")
	dbFile       = flag.String("db", "", "Path to a recorded session database (required)")
	sessionID    = flag.String("session", "", "Session id to replay (default: most recent in the database)")
	startingCash = flag.Float64("cash", 0, "Starting cash for the simulated account")
)

func main() {
	flag.Parse()

	if *dbFile == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --db <session.db> [--session <id>] [--config <file>]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	store, err := recorder.NewStore(*dbFile)
	if err != nil {
		logger.Fatal("failed to open session database", "path", *dbFile, "error", err)
	}
	defer store.Close()

	ctx := context.Background()

	id := *sessionID
	if id == "" {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			logger.Fatal("failed to list sessions", "error", err)
		}
		if len(sessions) == 0 {
			logger.Fatal("database contains no sessions", "path", *dbFile)
		}
		id = sessions[0]
	}

	ticks, err := store.LoadTicks(ctx, id)
	if err != nil {
		logger.Fatal("failed to load ticks", "session", id, "error", err)
	}
	logger.Info("replaying session", "session", id, "ticks", len(ticks))

	strategies := buildStrategies(cfg)
	if len(strategies) == 0 {
		logger.Fatal("no strategies enabled")
	}

	runner := backtest.NewRunner(cfg, logger)
	report, err := runner.Replay(ctx, ticks, strategies, *startingCash)
	if err != nil {
		logger.Fatal("replay failed", "error", err)
	}

	printReport(id, report)
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

func printReport(sessionID string, r *backtest.Report) {
	fmt.Printf("session:       %s\n", sessionID)
	fmt.Printf("ticks:         %d\n", r.Ticks)
	fmt.Printf("start nlv:     %.2f\n", r.StartNLV)
	fmt.Printf("final nlv:     %.2f\n", r.FinalNLV)
	fmt.Printf("pnl:           %.2f\n", r.PnL)
	fmt.Printf("max drawdown:  %.2f\n", r.MaxDrawdown)

	tickers := make([]string, 0, len(r.Positions))
	for t, pos := range r.Positions {
		if pos != 0 {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)
	if len(tickers) > 0 {
		fmt.Println("final positions:")
		for _, t := range tickers {
			fmt.Printf("  %-6s %+.0f\n", t, r.Positions[t])
		}
	}
}
