// Package recorder captures a live session (quotes, books, order events)
// into SQLite for later replay and analysis.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/pkg/concurrency"
)

// Recorder implements core.ITickRecorder. Order book fetches fan out over a
// worker pool; the SQLite write happens once all fetches for the tick are
// in.
type Recorder struct {
	store     *Store
	venue     core.IVenue
	logger    core.ILogger
	pool      *concurrency.WorkerPool
	sessionID string
	bookDepth int
	tickers   []string
}

var _ core.ITickRecorder = (*Recorder)(nil)

func New(cfg config.RecorderConfig, venue core.IVenue, caseName string, tickers []string, logger core.ILogger) (*Recorder, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	sessionID := uuid.NewString()
	dbPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("session_%s_%s.db", time.Now().Format("20060102_150405"), sessionID[:8]))

	store, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.CreateSession(context.Background(), sessionID, caseName); err != nil {
		store.Close()
		return nil, err
	}
	logger.Info("recording session", "session_id", sessionID, "db", dbPath)

	return &Recorder{
		store:  store,
		venue:  venue,
		logger: logger,
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:       "book-fetch",
			MaxWorkers: cfg.Workers,
		}, logger),
		sessionID: sessionID,
		bookDepth: cfg.BookDepth,
		tickers:   tickers,
	}, nil
}

// SessionID returns the id under which this session is stored.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// RecordTick persists the snapshot plus a depth snapshot per instrument.
// Book fetch failures degrade to a tick without that book rather than
// failing the tick.
func (r *Recorder) RecordTick(ctx context.Context, cs *core.Case, snapshot map[string]core.Security, nlv float64) error {
	books := make(map[string]*core.OrderBook, len(r.tickers))
	var mu sync.Mutex

	group := r.pool.Group()
	for _, ticker := range r.tickers {
		ticker := ticker
		group.Submit(func() {
			book, err := r.venue.GetOrderBook(ctx, ticker, r.bookDepth)
			if err != nil {
				r.logger.Warn("book fetch failed", "ticker", ticker, "error", err)
				return
			}
			mu.Lock()
			books[ticker] = book
			mu.Unlock()
		})
	}
	group.Wait()

	return r.store.SaveTick(ctx, r.sessionID, cs, snapshot, nlv, books)
}

func (r *Recorder) RecordOrderEvent(ctx context.Context, cs *core.Case, event string, order *core.VenueOrder) error {
	return r.store.SaveOrderEvent(ctx, r.sessionID, cs, event, order)
}

func (r *Recorder) Close() error {
	r.pool.Stop()
	return r.store.Close()
}
