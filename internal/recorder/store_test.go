package recorder

import (
	"context"
	"path/filepath"
	"testing"

	"spread_trader/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_TickRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, "sess-1", "LT3"); err != nil {
		t.Fatal(err)
	}

	snapshot := map[string]core.Security{
		"AAA": {Ticker: "AAA", Bid: 9.9, Ask: 10.1, Last: 10, Position: 500},
	}
	cs := &core.Case{Period: 1, Tick: 42}
	books := map[string]*core.OrderBook{
		"AAA": {Ticker: "AAA", Bids: []core.BookLevel{{Price: 9.9, Quantity: 100}}},
	}
	if err := store.SaveTick(ctx, "sess-1", cs, snapshot, 100_000, books); err != nil {
		t.Fatal(err)
	}

	ticks, err := store.LoadTicks(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 1 {
		t.Fatalf("ticks = %d, want 1", len(ticks))
	}
	got := ticks[0]
	if got.Tick != 42 || got.NLV != 100_000 {
		t.Errorf("tick = %+v", got)
	}
	if got.Snapshot["AAA"].Position != 500 {
		t.Errorf("snapshot position = %v, want 500", got.Snapshot["AAA"].Position)
	}
}

func TestStore_TicksOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, "sess-1", "LT3"); err != nil {
		t.Fatal(err)
	}

	// Insert out of order; LoadTicks must return session order.
	for _, pt := range [][2]int{{2, 1}, {1, 5}, {1, 2}} {
		cs := &core.Case{Period: pt[0], Tick: pt[1]}
		if err := store.SaveTick(ctx, "sess-1", cs, nil, 0, nil); err != nil {
			t.Fatal(err)
		}
	}
	ticks, err := store.LoadTicks(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int{{1, 2}, {1, 5}, {2, 1}}
	for i, w := range want {
		if ticks[i].Period != w[0] || ticks[i].Tick != w[1] {
			t.Errorf("ticks[%d] = period %d tick %d, want %v", i, ticks[i].Period, ticks[i].Tick, w)
		}
	}
}

func TestStore_SaveTickIdempotentPerTick(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, "sess-1", "LT3"); err != nil {
		t.Fatal(err)
	}
	cs := &core.Case{Period: 1, Tick: 1}
	if err := store.SaveTick(ctx, "sess-1", cs, nil, 1, nil); err != nil {
		t.Fatal(err)
	}
	// Same tick polled twice: the second write replaces, not duplicates.
	if err := store.SaveTick(ctx, "sess-1", cs, nil, 2, nil); err != nil {
		t.Fatal(err)
	}
	ticks, err := store.LoadTicks(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 1 || ticks[0].NLV != 2 {
		t.Errorf("ticks = %+v, want single row with nlv 2", ticks)
	}
}

func TestStore_OrderEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, "sess-1", "LT3"); err != nil {
		t.Fatal(err)
	}
	err := store.SaveOrderEvent(ctx, "sess-1", &core.Case{Period: 1, Tick: 3}, "submitted", &core.VenueOrder{OrderID: 9, Ticker: "AAA"})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_Sessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, "a", "LT3"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession(ctx, "b", "LT3"); err != nil {
		t.Fatal(err)
	}
	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("sessions = %v", sessions)
	}
}
