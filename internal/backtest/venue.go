// Package backtest replays recorded sessions against the engine with a
// simulated venue, so allocator and execution changes can be evaluated
// offline.
package backtest

import (
	"context"
	"fmt"

	"spread_trader/internal/core"
)

// SimVenue is an in-process venue fed from recorded snapshots. Limit
// orders fill in full when the quoted far side crosses the limit price.
type SimVenue struct {
	cs        core.Case
	snapshot  map[string]core.Security
	positions map[string]float64
	cash      float64

	nextID int64
	orders map[int64]*core.VenueOrder
}

var _ core.IVenue = (*SimVenue)(nil)

func NewSimVenue(startingCash float64) *SimVenue {
	return &SimVenue{
		snapshot:  make(map[string]core.Security),
		positions: make(map[string]float64),
		cash:      startingCash,
		orders:    make(map[int64]*core.VenueOrder),
	}
}

// SetTick advances the venue to the next recorded tick and fills any
// crossed resting orders.
func (v *SimVenue) SetTick(cs core.Case, snapshot map[string]core.Security) {
	v.cs = cs
	v.snapshot = snapshot
	v.fillCrossedOrders()
}

func (v *SimVenue) fillCrossedOrders() {
	for _, order := range v.orders {
		if order.Status != core.OrderStatusOpen {
			continue
		}
		sec, ok := v.snapshot[order.Ticker]
		if !ok {
			continue
		}
		limit, _ := order.Price.Float64()
		filled := false
		switch order.Side {
		case core.SideBuy:
			filled = sec.Ask > 0 && sec.Ask <= limit
		case core.SideSell:
			filled = sec.Bid > 0 && sec.Bid >= limit
		}
		if !filled {
			continue
		}

		qty, _ := order.Quantity.Float64()
		order.QuantityFilled = order.Quantity
		order.Status = core.OrderStatusTransacted
		if order.Side == core.SideBuy {
			v.positions[order.Ticker] += qty
			v.cash -= qty * limit
		} else {
			v.positions[order.Ticker] -= qty
			v.cash += qty * limit
		}
	}
}

func (v *SimVenue) GetCase(ctx context.Context) (*core.Case, error) {
	cs := v.cs
	return &cs, nil
}

func (v *SimVenue) GetSnapshot(ctx context.Context) (map[string]core.Security, error) {
	out := make(map[string]core.Security, len(v.snapshot))
	for ticker, sec := range v.snapshot {
		sec.Position = v.positions[ticker]
		out[ticker] = sec
	}
	return out, nil
}

func (v *SimVenue) GetNLV(ctx context.Context) (float64, error) {
	nlv := v.cash
	for ticker, pos := range v.positions {
		if sec, ok := v.snapshot[ticker]; ok {
			nlv += pos * sec.Mid()
		}
	}
	return nlv, nil
}

func (v *SimVenue) PlaceOrder(ctx context.Context, ticker string, intent core.OrderIntent) (*core.VenueOrder, error) {
	if _, ok := v.snapshot[ticker]; !ok {
		return nil, fmt.Errorf("unknown ticker %s", ticker)
	}
	v.nextID++
	order := &core.VenueOrder{
		OrderID:  v.nextID,
		Ticker:   ticker,
		Side:     intent.Side,
		Quantity: intent.Quantity,
		Price:    intent.Price,
		Status:   core.OrderStatusOpen,
	}
	v.orders[order.OrderID] = order
	return order, nil
}

func (v *SimVenue) CancelOrders(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if order, ok := v.orders[id]; ok && order.Status == core.OrderStatusOpen {
			order.Status = core.OrderStatusCancelled
		}
	}
	return nil
}

func (v *SimVenue) GetOrders(ctx context.Context, status core.OrderStatus) ([]*core.VenueOrder, error) {
	var out []*core.VenueOrder
	for _, order := range v.orders {
		if order.Status == status {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (v *SimVenue) GetOrderBook(ctx context.Context, ticker string, limit int) (*core.OrderBook, error) {
	sec, ok := v.snapshot[ticker]
	if !ok {
		return nil, fmt.Errorf("unknown ticker %s", ticker)
	}
	return &core.OrderBook{
		Ticker: ticker,
		Bids:   []core.BookLevel{{Price: sec.Bid, Quantity: 1e6}},
		Asks:   []core.BookLevel{{Price: sec.Ask, Quantity: 1e6}},
	}, nil
}

// Positions returns the simulated position book.
func (v *SimVenue) Positions() map[string]float64 {
	out := make(map[string]float64, len(v.positions))
	for t, p := range v.positions {
		out[t] = p
	}
	return out
}
