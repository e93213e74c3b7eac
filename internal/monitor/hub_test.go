package monitor

import (
	"context"
	"testing"
	"time"

	"spread_trader/internal/engine"
	"spread_trader/pkg/logging"
)

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := NewHub(logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := NewClient("c1")
	hub.Register(client)

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Publish(engine.TickReport{Tick: 7, NLV: 1234})

	select {
	case msg := <-client.SendChan():
		if msg.Type != "tick" {
			t.Errorf("type = %s, want tick", msg.Type)
		}
		report, ok := msg.Data.(engine.TickReport)
		if !ok || report.Tick != 7 {
			t.Errorf("data = %+v", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestHub_SlowClientDetached(t *testing.T) {
	hub := NewHub(logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := NewClient("slow")
	hub.Register(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	// Fill the client buffer without ever draining it; the hub must
	// detach the slow consumer rather than stall.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		hub.Publish(engine.TickReport{})
	}
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	// No Run loop draining the broadcast channel: Publish must still
	// return promptly once the buffer fills.
	hub := NewHub(logging.NewNopLogger())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(engine.TickReport{Tick: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked the caller")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub(logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := NewClient("c1")
	hub.Register(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	select {
	case _, open := <-client.SendChan():
		if open {
			t.Error("expected closed send channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("client not closed on shutdown")
	}
}

func TestHub_UnregisterAfterShutdownReturns(t *testing.T) {
	hub := NewHub(logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	client := NewClient("c1")
	hub.Register(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	<-runDone

	// A connection goroutine tearing down after the hub has stopped must
	// not block on its deferred unregister.
	returned := make(chan struct{})
	go func() {
		hub.Unregister(client)
		hub.Register(NewClient("c2"))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Register/Unregister blocked after hub shutdown")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
