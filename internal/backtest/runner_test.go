package backtest

import (
	"context"
	"testing"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/recorder"
	"spread_trader/pkg/logging"
)

// richBasket emits a constant signal shorting AAA once warm.
type richBasket struct{}

func (richBasket) Name() string { return "rich_basket" }

func (richBasket) ComputeSignal(snapshot map[string]core.Security, cs *core.Case) (*core.Signal, error) {
	sec, ok := snapshot["AAA"]
	if !ok {
		return nil, nil
	}
	return &core.Signal{
		Name:     "rich_basket",
		SDollars: sec.Mid() - 100,
		Legs:     map[string]float64{"AAA": -1},
	}, nil
}

func replayConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Allocator.GrossLimit = 10_000
	cfg.Allocator.NetLimit = 10_000
	cfg.Allocator.MaxShares = map[string]float64{"AAA": 100}
	cfg.Allocator.TurnoverPct = 1.0
	return cfg
}

func TestReplay_EmptySessionFails(t *testing.T) {
	r := NewRunner(replayConfig(), logging.NewNopLogger())
	if _, err := r.Replay(context.Background(), nil, nil, 100_000); err == nil {
		t.Error("expected error for empty session")
	}
}

func TestReplay_ProcessesAllTicks(t *testing.T) {
	var ticks []recorder.RecordedTick
	prices := []float64{100, 102, 104, 103, 101, 100}
	for i, p := range prices {
		ticks = append(ticks, recorder.RecordedTick{
			Period: 1,
			Tick:   i + 1,
			Snapshot: map[string]core.Security{
				"AAA": {Ticker: "AAA", Bid: p - 0.1, Ask: p + 0.1, Last: p},
			},
		})
	}

	r := NewRunner(replayConfig(), logging.NewNopLogger())
	report, err := r.Replay(context.Background(), ticks, []core.ISignalSource{richBasket{}}, 100_000)
	if err != nil {
		t.Fatal(err)
	}
	if report.Ticks != len(prices) {
		t.Errorf("ticks = %d, want %d", report.Ticks, len(prices))
	}
	if report.StartNLV != 100_000 {
		t.Errorf("start nlv = %v", report.StartNLV)
	}
	if report.PnL != report.FinalNLV-report.StartNLV {
		t.Errorf("pnl inconsistent: %+v", report)
	}
}
