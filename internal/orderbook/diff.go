package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
)

// DiffOptions controls which events the diff emits.
type DiffOptions struct {
	// Depth is the visible window size N.
	Depth int
	// EmitDecreases enables VolumeDecrease events.
	EmitDecreases bool
}

// Diff compares next against prev and returns the structural changes, bids
// first then asks, each side ordered best price first across the union of
// both windows. history must not yet contain next's prices.
//
// The result depends only on its arguments; timestamps come from next.
func Diff(prev, next *domain.OrderBookSnapshot, history *HistoricalPriceSet, opts DiffOptions) []domain.DiffEvent {
	var events []domain.DiffEvent
	for _, side := range domain.Sides {
		events = diffSide(events, side, prev.Levels(side), next.Levels(side), next, history, opts)
	}
	return events
}

type levelPair struct {
	price decimal.Decimal
	prev  *domain.PriceLevel
	next  *domain.PriceLevel
}

func diffSide(
	events []domain.DiffEvent,
	side domain.Side,
	prevLevels, nextLevels []domain.PriceLevel,
	next *domain.OrderBookSnapshot,
	history *HistoricalPriceSet,
	opts DiffOptions,
) []domain.DiffEvent {
	pairs := make(map[string]*levelPair, len(prevLevels)+len(nextLevels))
	for i := range prevLevels {
		lvl := &prevLevels[i]
		pairs[domain.PriceKey(lvl.Price)] = &levelPair{price: lvl.Price, prev: lvl}
	}
	for i := range nextLevels {
		lvl := &nextLevels[i]
		key := domain.PriceKey(lvl.Price)
		if p, ok := pairs[key]; ok {
			p.next = lvl
			continue
		}
		pairs[key] = &levelPair{price: lvl.Price, next: lvl}
	}

	ordered := make([]*levelPair, 0, len(pairs))
	for _, p := range pairs {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return side.Better(ordered[i].price, ordered[j].price)
	})

	// A full window means a vanished level may just have been pushed out by
	// better levels rather than leaving the book.
	windowFull := opts.Depth > 0 && len(nextLevels) >= opts.Depth

	for _, p := range ordered {
		ev := domain.DiffEvent{
			Side:      side,
			Price:     p.price,
			Timestamp: next.ReceivedAt,
		}

		switch {
		case p.prev == nil:
			ev.Kind = domain.DiffNewLevel
			if history.Contains(side, p.price) {
				ev.Kind = domain.DiffEnteredTop
			}
			ev.Volume = p.next.Volume
			ev.TotalVolume = p.next.Volume

		case p.next == nil:
			ev.Kind = domain.DiffRemoved
			ev.Volume = p.prev.Volume
			ev.TotalVolume = decimal.Zero
			// Every previously visible price is in history, so only a full
			// window can have pushed it out.
			if windowFull {
				ev.Kind = domain.DiffLeftTop
				ev.TotalVolume = p.prev.Volume
			}

		default:
			switch p.next.Volume.Cmp(p.prev.Volume) {
			case 1:
				ev.Kind = domain.DiffVolumeIncrease
				ev.Volume = p.next.Volume.Sub(p.prev.Volume)
			case -1:
				if !opts.EmitDecreases {
					continue
				}
				ev.Kind = domain.DiffVolumeDecrease
				ev.Volume = p.prev.Volume.Sub(p.next.Volume)
			default:
				continue
			}
			ev.TotalVolume = p.next.Volume
		}

		events = append(events, ev)
	}
	return events
}
