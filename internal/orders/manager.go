// Package orders reconciles locally tracked order intent against
// authoritative venue state. It enforces side exclusivity per instrument
// and survives the venue's "cancel acknowledged but fill still happens"
// failure mode without double-counting exposure.
package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
	apperrors "spread_trader/pkg/errors"
	"spread_trader/pkg/telemetry"
)

// OrderState is the lifecycle state of a tracked order.
type OrderState int

const (
	StateSent OrderState = iota
	StateLive
	StateCancelSent
	StateDone
)

func (s OrderState) String() string {
	switch s {
	case StateSent:
		return "Sent"
	case StateLive:
		return "Live"
	case StateCancelSent:
		return "CancelSent"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("OrderState(%d)", int(s))
	}
}

// TrackedOrder is the manager's view of one submitted order. Mutated only
// by the manager on the tick loop thread.
type TrackedOrder struct {
	OrderID         int64
	Ticker          string
	Side            core.Side
	Quantity        decimal.Decimal
	LimitPrice      decimal.Decimal
	CreatedAt       time.Time
	CancelSentAt    time.Time
	State           OrderState
	FilledQuantity  decimal.Decimal
	LastKnownStatus core.OrderStatus
}

func (o *TrackedOrder) open() bool {
	return o.State != StateDone
}

// EventRecorder receives order lifecycle events for session capture. A
// recording failure is logged and ignored; it never blocks trading.
type EventRecorder interface {
	RecordOrderEvent(ctx context.Context, cs *core.Case, event string, order *core.VenueOrder) error
}

// Manager owns the tracked-order book. Single-writer: all methods must be
// called from the tick loop.
type Manager struct {
	venue   core.IVenue
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	events  EventRecorder

	cancelCooldown time.Duration
	unknownTTL     time.Duration

	orders       map[int64]*TrackedOrder
	lastCancelAt map[string]time.Time

	// injectable for tests
	now func() time.Time
}

func NewManager(venue core.IVenue, cfg config.OrdersConfig, logger core.ILogger) *Manager {
	return &Manager{
		venue:          venue,
		logger:         logger,
		metrics:        telemetry.GetGlobalMetrics(),
		cancelCooldown: time.Duration(cfg.CancelCooldownMs) * time.Millisecond,
		unknownTTL:     time.Duration(cfg.UnknownOrderTTLMs) * time.Millisecond,
		orders:         make(map[int64]*TrackedOrder),
		lastCancelAt:   make(map[string]time.Time),
		now:            time.Now,
	}
}

// SetEventRecorder attaches a session recorder for order lifecycle events.
func (m *Manager) SetEventRecorder(r EventRecorder) {
	m.events = r
}

func (m *Manager) recordEvent(ctx context.Context, cs *core.Case, event string, order *core.VenueOrder) {
	if m.events == nil {
		return
	}
	if err := m.events.RecordOrderEvent(ctx, cs, event, order); err != nil {
		m.logger.Warn("order event recording failed", "event", event, "order_id", order.OrderID, "error", err)
	}
}

func (o *TrackedOrder) asVenueOrder() *core.VenueOrder {
	return &core.VenueOrder{
		OrderID:        o.OrderID,
		Ticker:         o.Ticker,
		Side:           o.Side,
		Quantity:       o.Quantity,
		Price:          o.LimitPrice,
		QuantityFilled: o.FilledQuantity,
		Status:         o.LastKnownStatus,
	}
}

// Refresh reconciles every tracked order against the venue's three status
// buckets. An order found in none of them is not assumed cancelled; it is
// kept until the unknown-order TTL elapses and then evicted as a zombie.
// Orders that reach Done are dropped to keep memory bounded.
func (m *Manager) Refresh(ctx context.Context, cs *core.Case) error {
	seen := make(map[int64]*core.VenueOrder)
	for _, status := range []core.OrderStatus{core.OrderStatusOpen, core.OrderStatusCancelled, core.OrderStatusTransacted} {
		venueOrders, err := m.venue.GetOrders(ctx, status)
		if err != nil {
			return fmt.Errorf("refresh: query %s orders: %w", status, err)
		}
		for _, vo := range venueOrders {
			seen[vo.OrderID] = vo
		}
	}

	now := m.now()
	for id, tracked := range m.orders {
		vo, ok := seen[id]
		if !ok {
			if now.Sub(tracked.CreatedAt) > m.unknownTTL {
				m.logger.Warn("evicting zombie order",
					"order_id", id,
					"ticker", tracked.Ticker,
					"state", tracked.State.String(),
					"age", now.Sub(tracked.CreatedAt).String(),
				)
				delete(m.orders, id)
				m.metrics.IncZombiesEvicted(ctx, 1)
				m.recordEvent(ctx, cs, "zombie_evicted", tracked.asVenueOrder())
			}
			continue
		}

		tracked.FilledQuantity = vo.QuantityFilled
		tracked.LastKnownStatus = vo.Status
		switch vo.Status {
		case core.OrderStatusOpen:
			if tracked.State == StateSent {
				tracked.State = StateLive
			}
		case core.OrderStatusCancelled, core.OrderStatusTransacted:
			tracked.State = StateDone
		}

		if tracked.State == StateDone {
			delete(m.orders, id)
			event := "cancelled"
			if vo.Status == core.OrderStatusTransacted {
				event = "transacted"
			}
			m.recordEvent(ctx, cs, event, vo)
		}
	}
	return nil
}

// Reconcile drives tracked orders toward the desired per-instrument intent.
//
// The side-exclusivity invariant is enforced by construction: when the
// desired side differs from an open order's side, the open order is
// cancelled and the new side is NOT submitted in the same pass. The venue
// can acknowledge a cancel and still transact the order afterward, so
// submitting the opposite side immediately risks holding fills on both
// sides of the instrument.
func (m *Manager) Reconcile(ctx context.Context, cs *core.Case, desired map[string]core.OrderIntent) error {
	for _, ticker := range m.tickersWithOpenOrders() {
		if _, wanted := desired[ticker]; !wanted {
			if err := m.CancelTicker(ctx, cs, ticker); err != nil {
				return err
			}
		}
	}

	tickers := make([]string, 0, len(desired))
	for t := range desired {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		intent := desired[ticker]
		open := m.openOrdersFor(ticker)

		if len(open) > 0 {
			sameSide := true
			for _, o := range open {
				if o.Side != intent.Side {
					sameSide = false
					break
				}
			}
			if sameSide {
				// Unchanged intent: leave the resting order alone.
				continue
			}
			if err := m.CancelTicker(ctx, cs, ticker); err != nil {
				return err
			}
			// Wait for the cancel to be observed before flipping sides.
			continue
		}

		if last, ok := m.lastCancelAt[ticker]; ok && m.now().Sub(last) < m.cancelCooldown {
			m.logger.Debug("cancel cooldown active, deferring submission", "ticker", ticker)
			continue
		}

		if err := m.submit(ctx, cs, ticker, intent); err != nil {
			if apperrors.IsRiskLimitRejection(err) {
				// The venue is at its exposure limit; stop hammering it
				// for the rest of this pass and retry next tick.
				m.logger.Warn("risk limit rejection, halting reconciliation pass",
					"ticker", ticker,
					"side", string(intent.Side),
					"quantity", intent.Quantity.String(),
				)
				m.metrics.IncRiskRejections(ctx)
				return nil
			}
			return err
		}
	}
	return nil
}

func (m *Manager) submit(ctx context.Context, cs *core.Case, ticker string, intent core.OrderIntent) error {
	vo, err := m.venue.PlaceOrder(ctx, ticker, intent)
	if err != nil {
		return fmt.Errorf("submit %s %s %s @ %s: %w",
			intent.Side, ticker, intent.Quantity, intent.Price, err)
	}
	if vo == nil || vo.OrderID == 0 {
		return fmt.Errorf("submit %s %s: %w: response carried no order id",
			intent.Side, ticker, apperrors.ErrProtocol)
	}
	m.orders[vo.OrderID] = &TrackedOrder{
		OrderID:    vo.OrderID,
		Ticker:     ticker,
		Side:       intent.Side,
		Quantity:   intent.Quantity,
		LimitPrice: intent.Price,
		CreatedAt:  m.now(),
		State:      StateSent,
	}
	m.metrics.IncOrdersSubmitted(ctx, 1)
	m.recordEvent(ctx, cs, "submitted", vo)
	m.logger.Info("order submitted",
		"order_id", vo.OrderID,
		"ticker", ticker,
		"side", string(intent.Side),
		"quantity", intent.Quantity.String(),
		"price", intent.Price.String(),
	)
	return nil
}

// CancelTicker cancels every open order on the instrument and starts the
// cooldown window.
func (m *Manager) CancelTicker(ctx context.Context, cs *core.Case, ticker string) error {
	var ids []int64
	for _, o := range m.openOrdersFor(ticker) {
		if o.State == StateCancelSent {
			continue
		}
		ids = append(ids, o.OrderID)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := m.venue.CancelOrders(ctx, ids); err != nil {
		return fmt.Errorf("cancel %s orders %v: %w", ticker, ids, err)
	}
	now := m.now()
	for _, id := range ids {
		o := m.orders[id]
		o.State = StateCancelSent
		o.CancelSentAt = now
		m.recordEvent(ctx, cs, "cancel_sent", o.asVenueOrder())
	}
	m.lastCancelAt[ticker] = now
	m.metrics.IncOrdersCancelled(ctx, int64(len(ids)))
	m.logger.Info("cancel sent", "ticker", ticker, "order_ids", ids)
	return nil
}

// EffectivePositionAdjustments returns, per instrument, the signed share
// exposure still represented by in-flight orders: the unfilled remainder of
// every non-Done order, counted as if it will fill. Filled quantity is
// excluded because it already shows up in the venue position.
func (m *Manager) EffectivePositionAdjustments() map[string]float64 {
	adj := make(map[string]float64)
	for _, o := range m.orders {
		if !o.open() {
			continue
		}
		remaining, _ := o.Quantity.Sub(o.FilledQuantity).Float64()
		if remaining <= 0 {
			continue
		}
		if o.Side == core.SideSell {
			remaining = -remaining
		}
		adj[o.Ticker] += remaining
	}
	return adj
}

// Outstanding returns a copy of all tracked orders, for diagnostics.
func (m *Manager) Outstanding() []TrackedOrder {
	out := make([]TrackedOrder, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (m *Manager) openOrdersFor(ticker string) []*TrackedOrder {
	var out []*TrackedOrder
	for _, o := range m.orders {
		if o.Ticker == ticker && o.open() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (m *Manager) tickersWithOpenOrders() []string {
	set := make(map[string]bool)
	for _, o := range m.orders {
		if o.open() {
			set[o.Ticker] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
