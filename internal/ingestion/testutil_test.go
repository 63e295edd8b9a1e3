package ingestion

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/orderbook"
	"depth-whale-monitor/internal/whale"
)

var (
	baseTime   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testLogger = log.New(io.Discard, "", 0)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

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

// collectingQueue records enqueued points.
type collectingQueue struct {
	points []domain.Point
	err    error
}

func (q *collectingQueue) Enqueue(_ context.Context, p domain.Point) error {
	if q.err != nil {
		return q.err
	}
	q.points = append(q.points, p)
	return nil
}

func (q *collectingQueue) ofKind(kind domain.PointKind) []domain.Point {
	var out []domain.Point
	for _, p := range q.points {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func (q *collectingQueue) reset() {
	q.points = nil
}

type collectingNotifier struct {
	events []domain.WhaleEvent
}

func (n *collectingNotifier) Notify(ev domain.WhaleEvent) {
	n.events = append(n.events, ev)
}

type collectingCache struct {
	stats []domain.AggregateStats
}

func (c *collectingCache) Offer(st domain.AggregateStats) {
	c.stats = append(c.stats, st)
}

// allPass classifies every positive notional as a whale.
func allPass() whale.Thresholds {
	th := whale.DefaultThresholds()
	th.MinUSD = decimal.Zero
	return th
}

func newTestPipeline(cfg Config, depth int, q *collectingQueue) *Pipeline {
	storeCfg := orderbook.DefaultConfig()
	storeCfg.Depth = depth
	return NewPipeline(cfg, Options{
		Store:      orderbook.NewStore(storeCfg),
		Classifier: whale.NewClassifier(allPass()),
		Queue:      q,
		Logger:     testLogger,
	})
}
