// Package stats derives aggregate microstructure statistics from a snapshot.
package stats

import (
	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// DefaultBands are the default depth band widths in percent.
func DefaultBands() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.RequireFromString("0.1"),
		decimal.RequireFromString("0.5"),
		decimal.NewFromInt(1),
		decimal.NewFromInt(2),
		decimal.NewFromInt(5),
	}
}

// Calculator computes AggregateStats for a configured set of depth bands.
type Calculator struct {
	bands []decimal.Decimal
}

// NewCalculator creates a calculator. bands are percentages (0.5 means 0.5%).
func NewCalculator(bands []decimal.Decimal) *Calculator {
	cp := make([]decimal.Decimal, len(bands))
	copy(cp, bands)
	return &Calculator{bands: cp}
}

// Compute derives stats from snap. It is a pure function of its input.
func (c *Calculator) Compute(snap domain.OrderBookSnapshot) domain.AggregateStats {
	st := domain.AggregateStats{
		Symbol:         snap.Symbol,
		Timestamp:      snap.ReceivedAt,
		BidVolumeTotal: sumVolume(snap.Bids),
		AskVolumeTotal: sumVolume(snap.Asks),
		Bands:          make([]domain.DepthBand, 0, len(c.bands)),
	}

	st.Imbalance = Imbalance(st.BidVolumeTotal, st.AskVolumeTotal)

	bestBid, hasBid := snap.BestBid()
	bestAsk, hasAsk := snap.BestAsk()
	if hasBid {
		st.BestBid = bestBid
	}
	if hasAsk {
		st.BestAsk = bestAsk
	}

	if hasBid && hasAsk {
		st.MidPrice = bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
		st.Spread = bestAsk.Sub(bestBid)
		if st.MidPrice.IsPositive() {
			st.SpreadPct = st.Spread.Div(st.MidPrice).Mul(hundred)
		}
	}

	for _, band := range c.bands {
		db := domain.DepthBand{Pct: band, BidVolume: decimal.Zero, AskVolume: decimal.Zero}
		if st.MidPrice.IsPositive() {
			frac := band.Div(hundred)
			bidFloor := st.MidPrice.Mul(one.Sub(frac))
			askCeil := st.MidPrice.Mul(one.Add(frac))
			for _, lvl := range snap.Bids {
				if lvl.Price.GreaterThanOrEqual(bidFloor) {
					db.BidVolume = db.BidVolume.Add(lvl.Volume)
				}
			}
			for _, lvl := range snap.Asks {
				if lvl.Price.LessThanOrEqual(askCeil) {
					db.AskVolume = db.AskVolume.Add(lvl.Volume)
				}
			}
		}
		st.Bands = append(st.Bands, db)
	}

	return st
}

// Imbalance returns (bid - ask) / (bid + ask), clamped to [-1, 1], and zero
// when the total is zero.
func Imbalance(bid, ask decimal.Decimal) decimal.Decimal {
	total := bid.Add(ask)
	if total.IsZero() {
		return decimal.Zero
	}
	v := bid.Sub(ask).Div(total)
	if v.GreaterThan(one) {
		return one
	}
	if v.LessThan(one.Neg()) {
		return one.Neg()
	}
	return v
}

// DistanceFromMidPct returns (price - mid) / mid * 100, zero without a mid.
func DistanceFromMidPct(price, mid decimal.Decimal) decimal.Decimal {
	if !mid.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(mid).Div(mid).Mul(hundred)
}

func sumVolume(levels []domain.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Volume)
	}
	return total
}
