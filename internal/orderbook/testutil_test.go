package orderbook

import (
	"time"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// lv builds a level from "price", "volume" pairs.
func lv(pairs ...string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		levels = append(levels, domain.PriceLevel{Price: dec(pairs[i]), Volume: dec(pairs[i+1]), OrderCount: 1})
	}
	return levels
}

func snap(seq int64, bids, asks []domain.PriceLevel) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Symbol:     "BTC",
		Bids:       bids,
		Asks:       asks,
		Sequence:   seq,
		ReceivedAt: baseTime.Add(time.Duration(seq) * 100 * time.Millisecond),
	}
}

type eventSummary struct {
	Kind   domain.DiffKind
	Side   domain.Side
	Price  string
	Volume string
	Total  string
}

func summarize(events []domain.DiffEvent) []eventSummary {
	out := make([]eventSummary, 0, len(events))
	for _, e := range events {
		out = append(out, eventSummary{
			Kind:   e.Kind,
			Side:   e.Side,
			Price:  e.Price.String(),
			Volume: e.Volume.String(),
			Total:  e.TotalVolume.String(),
		})
	}
	return out
}
