package core

import (
	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the venue's view of an order.
type OrderStatus string

const (
	OrderStatusOpen       OrderStatus = "OPEN"
	OrderStatusTransacted OrderStatus = "TRANSACTED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// CaseStatus is the state of the trading session on the venue.
type CaseStatus string

const (
	CaseActive  CaseStatus = "ACTIVE"
	CasePaused  CaseStatus = "PAUSED"
	CaseStopped CaseStatus = "STOPPED"
)

// Case describes the current trading session.
type Case struct {
	Name           string
	Period         int
	Tick           int
	TicksPerPeriod int
	Status         CaseStatus
}

// Security is one instrument's quote and position snapshot.
type Security struct {
	Ticker   string
	Bid      float64
	Ask      float64
	Last     float64
	Position float64
}

// Mid returns the mid price, falling back to last when either side of the
// book is missing. A non-positive return means no usable price this tick.
func (s Security) Mid() float64 {
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	return s.Last
}

// Signal is one strategy's per-tick allocator input. Legs gives shares per
// instrument for +1 unit of the canonical short-the-mispricing trade; the
// sign of SDollars gives the trade direction.
type Signal struct {
	Name          string
	SDollars      float64
	EntryDollars  float64
	RTCostDollars float64
	Legs          map[string]float64
}

// OrderIntent is the desired resting order for one instrument this tick.
type OrderIntent struct {
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// VenueOrder is an order record as reported by the venue.
type VenueOrder struct {
	OrderID        int64
	Ticker         string
	Side           Side
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	QuantityFilled decimal.Decimal
	Status         OrderStatus
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot for one instrument.
type OrderBook struct {
	Ticker string
	Bids   []BookLevel
	Asks   []BookLevel
}
