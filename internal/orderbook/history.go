package orderbook

import (
	"container/list"
	"time"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
)

// HistoryConfig bounds the historical price set. Both limits apply per side.
type HistoryConfig struct {
	// TTL evicts prices not seen for longer than this. Zero disables.
	TTL time.Duration
	// Capacity caps the number of tracked prices, oldest evicted first. Zero disables.
	Capacity int
}

// DefaultHistoryConfig returns the default bounds.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		TTL:      30 * time.Minute,
		Capacity: 5000,
	}
}

// HistoricalPriceSet remembers every price observed in a visible window,
// with its last-seen time. Entries are kept in recency order so eviction
// walks from the least recently seen end.
//
// Not safe for concurrent use: it is owned by a single Store.
type HistoricalPriceSet struct {
	cfg   HistoryConfig
	sides map[domain.Side]*sideHistory
}

type sideHistory struct {
	entries map[string]*list.Element
	order   *list.List // front = most recently seen
}

type historyEntry struct {
	key      string
	price    decimal.Decimal
	lastSeen time.Time
}

// NewHistoricalPriceSet creates an empty set.
func NewHistoricalPriceSet(cfg HistoryConfig) *HistoricalPriceSet {
	h := &HistoricalPriceSet{cfg: cfg}
	h.Reset()
	return h
}

// Reset forgets every price.
func (h *HistoricalPriceSet) Reset() {
	h.sides = make(map[domain.Side]*sideHistory, len(domain.Sides))
	for _, side := range domain.Sides {
		h.sides[side] = &sideHistory{
			entries: make(map[string]*list.Element),
			order:   list.New(),
		}
	}
}

// Contains reports whether price has been seen on side and not yet evicted.
func (h *HistoricalPriceSet) Contains(side domain.Side, price decimal.Decimal) bool {
	_, ok := h.sides[side].entries[domain.PriceKey(price)]
	return ok
}

// LastSeen returns when price was last visible on side.
func (h *HistoricalPriceSet) LastSeen(side domain.Side, price decimal.Decimal) (time.Time, bool) {
	el, ok := h.sides[side].entries[domain.PriceKey(price)]
	if !ok {
		return time.Time{}, false
	}
	return el.Value.(*historyEntry).lastSeen, true
}

// Len returns the number of tracked prices on side.
func (h *HistoricalPriceSet) Len(side domain.Side) int {
	return len(h.sides[side].entries)
}

// Touch records price as visible at the given time.
func (h *HistoricalPriceSet) Touch(side domain.Side, price decimal.Decimal, at time.Time) {
	sh := h.sides[side]
	key := domain.PriceKey(price)
	if el, ok := sh.entries[key]; ok {
		el.Value.(*historyEntry).lastSeen = at
		sh.order.MoveToFront(el)
		return
	}
	sh.entries[key] = sh.order.PushFront(&historyEntry{key: key, price: price, lastSeen: at})
}

// Evict drops expired and over-capacity entries, least recently seen first.
// Prices in visible are never evicted, even if that leaves the set above
// capacity. now is the snapshot time, not the wall clock.
// Returns the number of evicted entries.
func (h *HistoricalPriceSet) Evict(now time.Time, visible map[domain.Side]map[string]struct{}) int {
	evicted := 0
	for _, side := range domain.Sides {
		sh := h.sides[side]
		vis := visible[side]

		el := sh.order.Back()
		for el != nil {
			prev := el.Prev()
			e := el.Value.(*historyEntry)

			if _, isVisible := vis[e.key]; isVisible {
				el = prev
				continue
			}

			overCapacity := h.cfg.Capacity > 0 && len(sh.entries) > h.cfg.Capacity
			expired := h.cfg.TTL > 0 && now.Sub(e.lastSeen) > h.cfg.TTL
			if !overCapacity && !expired {
				break
			}

			sh.order.Remove(el)
			delete(sh.entries, e.key)
			evicted++
			el = prev
		}
	}
	return evicted
}
