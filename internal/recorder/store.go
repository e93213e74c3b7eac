package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"spread_trader/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	case_name  TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ticks (
	session_id  TEXT NOT NULL,
	period      INTEGER NOT NULL,
	tick        INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	nlv         REAL NOT NULL,
	snapshot    TEXT NOT NULL,
	PRIMARY KEY (session_id, period, tick)
);
CREATE TABLE IF NOT EXISTS order_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	period     INTEGER NOT NULL,
	tick       INTEGER NOT NULL,
	event      TEXT NOT NULL,
	order_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS books (
	session_id TEXT NOT NULL,
	period     INTEGER NOT NULL,
	tick       INTEGER NOT NULL,
	ticker     TEXT NOT NULL,
	book       TEXT NOT NULL,
	PRIMARY KEY (session_id, period, tick, ticker)
);
`

// Store persists recorded sessions in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// WAL keeps readers (replay, analysis) from blocking the recorder.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateSession(ctx context.Context, id, caseName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, case_name, started_at) VALUES (?, ?, ?)`,
		id, caseName, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// SaveTick writes one tick and its book snapshots in a single transaction.
func (s *Store) SaveTick(ctx context.Context, sessionID string, cs *core.Case, snapshot map[string]core.Security, nlv float64, books map[string]*core.OrderBook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO ticks (session_id, period, tick, recorded_at, nlv, snapshot) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, cs.Period, cs.Tick, time.Now().UTC().Format(time.RFC3339Nano), nlv, string(snapJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tick: %w", err)
	}

	for ticker, book := range books {
		bookJSON, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("failed to marshal book %s: %w", ticker, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO books (session_id, period, tick, ticker, book) VALUES (?, ?, ?, ?, ?)`,
			sessionID, cs.Period, cs.Tick, ticker, string(bookJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert book %s: %w", ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tick: %w", err)
	}
	return nil
}

func (s *Store) SaveOrderEvent(ctx context.Context, sessionID string, cs *core.Case, event string, order *core.VenueOrder) error {
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO order_events (session_id, period, tick, event, order_json) VALUES (?, ?, ?, ?, ?)`,
		sessionID, cs.Period, cs.Tick, event, string(orderJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

// RecordedTick is one replayable row of a recorded session.
type RecordedTick struct {
	Period   int
	Tick     int
	NLV      float64
	Snapshot map[string]core.Security
}

// LoadTicks returns a session's ticks in time order.
func (s *Store) LoadTicks(ctx context.Context, sessionID string) ([]RecordedTick, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, tick, nlv, snapshot FROM ticks WHERE session_id = ? ORDER BY period, tick`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var out []RecordedTick
	for rows.Next() {
		var rt RecordedTick
		var snapJSON string
		if err := rows.Scan(&rt.Period, &rt.Tick, &rt.NLV, &snapJSON); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		if err := json.Unmarshal([]byte(snapJSON), &rt.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// Sessions lists recorded session ids, newest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
