package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one side of the order book.
type Side string

// Book sides.
const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Sides lists both book sides in processing order.
var Sides = []Side{SideBid, SideAsk}

// Better reports whether price a ranks ahead of price b on this side:
// higher for bids, lower for asks.
func (s Side) Better(a, b decimal.Decimal) bool {
	if s == SideBid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// PriceLevel is the aggregated resting interest at one price on one side.
type PriceLevel struct {
	Price      decimal.Decimal
	Volume     decimal.Decimal
	OrderCount int
}

// PriceKey returns the canonical map key for a price.
// decimal.String trims trailing zeros, so "100.0" and "100" share a key.
func PriceKey(p decimal.Decimal) string {
	return p.String()
}

// OrderBookSnapshot holds the visible top-N levels of both sides.
// Bids are ordered highest first, asks lowest first.
type OrderBookSnapshot struct {
	Symbol     string
	Bids       []PriceLevel
	Asks       []PriceLevel
	Sequence   int64     // venue sequence_version, monotonic per connection
	ReceivedAt time.Time // venue timestamp from the message, never local time
}

// Levels returns the levels for one side.
func (s *OrderBookSnapshot) Levels(side Side) []PriceLevel {
	if side == SideBid {
		return s.Bids
	}
	return s.Asks
}

// BestBid returns the highest bid, false if the side is empty.
func (s *OrderBookSnapshot) BestBid() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 {
		return decimal.Zero, false
	}
	return s.Bids[0].Price, true
}

// BestAsk returns the lowest ask, false if the side is empty.
func (s *OrderBookSnapshot) BestAsk() (decimal.Decimal, bool) {
	if len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	return s.Asks[0].Price, true
}
