package ingestion

import (
	"errors"
	"sort"

	"depth-whale-monitor/internal/domain"
)

// ErrInvalidOrdering is returned when levels are not best-first.
var ErrInvalidOrdering = errors.New("levels are not in best-first order")

// SortLevels orders levels best-first for side: bids by price DESC, asks by
// price ASC.
func SortLevels(side domain.Side, levels []domain.PriceLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		return side.Better(levels[i].Price, levels[j].Price)
	})
}

// NormalizeSnapshot sorts both sides of snap best-first in place.
func NormalizeSnapshot(snap *domain.OrderBookSnapshot) {
	SortLevels(domain.SideBid, snap.Bids)
	SortLevels(domain.SideAsk, snap.Asks)
}

// ValidateLevelOrdering checks levels are strictly best-first.
// Returns ErrInvalidOrdering if not.
func ValidateLevelOrdering(side domain.Side, levels []domain.PriceLevel) error {
	for i := 1; i < len(levels); i++ {
		if !side.Better(levels[i-1].Price, levels[i].Price) {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// SortTrades orders trades by timestamp ASC, keeping venue order for ties.
func SortTrades(trades []domain.TradeEvent) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}
