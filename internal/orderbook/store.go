// Package orderbook reconstructs order-book state from periodic top-N
// snapshots and classifies the structural changes between them.
package orderbook

import "depth-whale-monitor/internal/domain"

// Config configures a Store.
type Config struct {
	// Depth is the visible window size N per side.
	Depth int
	// EmitDecreases enables VolumeDecrease events.
	EmitDecreases bool
	History       HistoryConfig
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Depth:         20,
		EmitDecreases: true,
		History:       DefaultHistoryConfig(),
	}
}

// Store owns the last processed snapshot and the historical price set.
// It is a single-owner state machine advanced by the session message loop;
// it is not safe for concurrent use.
type Store struct {
	cfg     Config
	prev    *domain.OrderBookSnapshot
	history *HistoricalPriceSet
	evicted int64
}

// NewStore creates an empty, unseeded store.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		history: NewHistoricalPriceSet(cfg.History),
	}
}

// Seeded reports whether a baseline snapshot has been committed since the
// last reset.
func (s *Store) Seeded() bool {
	return s.prev != nil
}

// Current returns the last committed snapshot.
func (s *Store) Current() (domain.OrderBookSnapshot, bool) {
	if s.prev == nil {
		return domain.OrderBookSnapshot{}, false
	}
	return *s.prev, true
}

// History exposes the historical price set for inspection.
func (s *Store) History() *HistoricalPriceSet {
	return s.history
}

// Evicted returns the total number of history entries evicted.
func (s *Store) Evicted() int64 {
	return s.evicted
}

// Reset discards the visible snapshot so the next Apply is treated as
// ground truth. clearHistory also forgets every historical price.
func (s *Store) Reset(clearHistory bool) {
	s.prev = nil
	if clearHistory {
		s.history.Reset()
	}
}

// Apply diffs next against the committed snapshot, commits next, and
// refreshes the history. The first snapshot after construction or Reset is
// committed silently and yields no events.
func (s *Store) Apply(next domain.OrderBookSnapshot) []domain.DiffEvent {
	next = s.window(next)

	var events []domain.DiffEvent
	if s.prev != nil {
		events = Diff(s.prev, &next, s.history, DiffOptions{
			Depth:         s.cfg.Depth,
			EmitDecreases: s.cfg.EmitDecreases,
		})
	}

	s.commit(next)
	return events
}

// window copies both sides, trimmed to the visible depth, so the store never
// shares level slices with the caller.
func (s *Store) window(snap domain.OrderBookSnapshot) domain.OrderBookSnapshot {
	snap.Bids = s.trim(snap.Bids)
	snap.Asks = s.trim(snap.Asks)
	return snap
}

func (s *Store) trim(levels []domain.PriceLevel) []domain.PriceLevel {
	n := len(levels)
	if s.cfg.Depth > 0 && n > s.cfg.Depth {
		n = s.cfg.Depth
	}
	out := make([]domain.PriceLevel, n)
	copy(out, levels[:n])
	return out
}

func (s *Store) commit(next domain.OrderBookSnapshot) {
	s.prev = &next

	visible := make(map[domain.Side]map[string]struct{}, len(domain.Sides))
	for _, side := range domain.Sides {
		levels := next.Levels(side)
		keys := make(map[string]struct{}, len(levels))
		for _, lvl := range levels {
			s.history.Touch(side, lvl.Price, next.ReceivedAt)
			keys[domain.PriceKey(lvl.Price)] = struct{}{}
		}
		visible[side] = keys
	}

	s.evicted += int64(s.history.Evict(next.ReceivedAt, visible))
}

