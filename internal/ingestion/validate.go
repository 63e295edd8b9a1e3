package ingestion

import (
	"errors"
	"fmt"

	"depth-whale-monitor/internal/domain"
)

// ErrInvalidSnapshot is returned for a snapshot that violates book invariants.
// The message is rejected; state is left untouched.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ErrInvalidTrade is returned for a trade that cannot be classified.
var ErrInvalidTrade = errors.New("invalid trade")

// ValidateSnapshot checks a normalized snapshot: positive prices, non-negative
// volumes and order counts, unique prices per side, best-first ordering, no
// price on both sides and no crossed book.
func ValidateSnapshot(snap *domain.OrderBookSnapshot) error {
	if snap.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidSnapshot)
	}

	seen := make(map[string]domain.Side, len(snap.Bids)+len(snap.Asks))
	for _, side := range domain.Sides {
		for _, lvl := range snap.Levels(side) {
			if !lvl.Price.IsPositive() {
				return fmt.Errorf("%w: %s price %s not positive", ErrInvalidSnapshot, side, lvl.Price)
			}
			if lvl.Volume.IsNegative() {
				return fmt.Errorf("%w: %s %s negative volume %s", ErrInvalidSnapshot, side, lvl.Price, lvl.Volume)
			}
			if lvl.OrderCount < 0 {
				return fmt.Errorf("%w: %s %s negative order count", ErrInvalidSnapshot, side, lvl.Price)
			}

			key := domain.PriceKey(lvl.Price)
			if other, ok := seen[key]; ok {
				if other == side {
					return fmt.Errorf("%w: duplicate %s price %s", ErrInvalidSnapshot, side, lvl.Price)
				}
				return fmt.Errorf("%w: price %s on both sides", ErrInvalidSnapshot, lvl.Price)
			}
			seen[key] = side
		}
		if err := ValidateLevelOrdering(side, snap.Levels(side)); err != nil {
			return fmt.Errorf("%w: %s %w", ErrInvalidSnapshot, side, err)
		}
	}

	bid, hasBid := snap.BestBid()
	ask, hasAsk := snap.BestAsk()
	if hasBid && hasAsk && bid.GreaterThan(ask) {
		return fmt.Errorf("%w: crossed book bid %s > ask %s", ErrInvalidSnapshot, bid, ask)
	}
	return nil
}

// ValidateTrade checks a trade has a symbol, a known side and positive size.
func ValidateTrade(tr *domain.TradeEvent) error {
	switch {
	case tr.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidTrade)
	case !tr.Side.IsValid():
		return fmt.Errorf("%w: unknown side %q", ErrInvalidTrade, tr.Side)
	case !tr.Price.IsPositive():
		return fmt.Errorf("%w: price %s not positive", ErrInvalidTrade, tr.Price)
	case !tr.Volume.IsPositive():
		return fmt.Errorf("%w: volume %s not positive", ErrInvalidTrade, tr.Volume)
	}
	return nil
}
