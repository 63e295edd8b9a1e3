package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthBand is the resting volume within a percentage distance of mid.
type DepthBand struct {
	Pct       decimal.Decimal // band width in percent, e.g. 0.5 for 0.5%
	BidVolume decimal.Decimal
	AskVolume decimal.Decimal
}

// AggregateStats summarises one processed snapshot.
// When either side is empty, BestBid/BestAsk of the missing side, Spread,
// SpreadPct, MidPrice and all band volumes are zero.
type AggregateStats struct {
	Symbol         string
	Timestamp      time.Time
	BestBid        decimal.Decimal
	BestAsk        decimal.Decimal
	Spread         decimal.Decimal
	SpreadPct      decimal.Decimal
	MidPrice       decimal.Decimal
	BidVolumeTotal decimal.Decimal
	AskVolumeTotal decimal.Decimal
	Imbalance      decimal.Decimal // in [-1, 1], zero when both totals are zero
	Bands          []DepthBand
}

// HasMid reports whether both sides were present.
func (s *AggregateStats) HasMid() bool {
	return s.MidPrice.IsPositive()
}
