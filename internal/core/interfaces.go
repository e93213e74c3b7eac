// Package core defines the shared types and interfaces of the execution engine.
package core

import (
	"context"
)

// IVenue is the narrow surface the engine needs from the trading venue. The
// venue's acknowledgments are treated as unreliable: a cancel may be
// acknowledged while the order still transacts afterward, so callers must
// reconcile against the status queries rather than trust call results.
type IVenue interface {
	// GetCase returns the current session descriptor.
	GetCase(ctx context.Context) (*Case, error)

	// GetSnapshot returns quotes and positions for every tradable instrument.
	GetSnapshot(ctx context.Context) (map[string]Security, error)

	// GetNLV returns the trader's net liquidation value.
	GetNLV(ctx context.Context) (float64, error)

	// PlaceOrder submits a limit order. A response without a usable order
	// identifier is a protocol error; a venue-side risk-limit rejection is
	// reported as apperrors.ErrRiskLimitRejected.
	PlaceOrder(ctx context.Context, ticker string, intent OrderIntent) (*VenueOrder, error)

	// CancelOrders requests cancellation of the given order ids.
	CancelOrders(ctx context.Context, ids []int64) error

	// GetOrders returns all orders currently in the given status bucket.
	GetOrders(ctx context.Context, status OrderStatus) ([]*VenueOrder, error)

	// GetOrderBook returns a depth snapshot for one instrument.
	GetOrderBook(ctx context.Context, ticker string, limit int) (*OrderBook, error)
}

// ISignalSource computes one strategy's mispricing signal per tick. A nil
// signal with nil error means the strategy has no usable data this tick.
type ISignalSource interface {
	Name() string
	ComputeSignal(snapshot map[string]Security, cs *Case) (*Signal, error)
}

// ITickRecorder receives per-tick engine output for offline replay.
type ITickRecorder interface {
	RecordTick(ctx context.Context, cs *Case, snapshot map[string]Security, nlv float64) error
	RecordOrderEvent(ctx context.Context, cs *Case, event string, order *VenueOrder) error
	Close() error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
