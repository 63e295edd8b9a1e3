// Package memory provides in-memory implementations of the storage
// interfaces for tests and --use-memory runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/storage"
)

// PointStore is an in-memory implementation of storage.Store.
type PointStore struct {
	mu      sync.RWMutex
	events  []*storage.EventRow
	stats   []*storage.StatsRow
	depth   []*storage.DepthRow
	batches int
}

// NewPointStore creates a new in-memory point store.
func NewPointStore() *PointStore {
	return &PointStore{}
}

// Compile-time interface check.
var _ storage.Store = (*PointStore)(nil)

// WriteBatch stores every point. The batch is rejected whole on invalid input.
func (s *PointStore) WriteBatch(_ context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	b, err := storage.Partition(points)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, b.Events...)
	s.stats = append(s.stats, b.Stats...)
	s.depth = append(s.depth, b.Depth...)
	s.batches++
	return nil
}

// EventsByTimeRange returns events for symbol within [start, end], ordered by timestamp ASC.
func (s *PointStore) EventsByTimeRange(_ context.Context, symbol string, start, end int64) ([]*storage.EventRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.EventRow
	for _, e := range s.events {
		ts := e.Timestamp.UnixMilli()
		if e.Symbol == symbol && ts >= start && ts <= end {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// StatsByTimeRange returns stats for symbol within [start, end], ordered by timestamp ASC.
func (s *PointStore) StatsByTimeRange(_ context.Context, symbol string, start, end int64) ([]*storage.StatsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.StatsRow
	for _, st := range s.stats {
		ts := st.Timestamp.UnixMilli()
		if st.Symbol == symbol && ts >= start && ts <= end {
			statsCopy := *st
			statsCopy.Bands = append([]domain.DepthBand(nil), st.Bands...)
			result = append(result, &statsCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// DepthBySequence returns the levels recorded for one snapshot, bids then asks by rank.
func (s *PointStore) DepthBySequence(_ context.Context, symbol string, sequence int64) ([]*storage.DepthRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.DepthRow
	for _, d := range s.depth {
		if d.Symbol == symbol && d.Sequence == sequence {
			depthCopy := *d
			result = append(result, &depthCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Side != result[j].Side {
			return result[i].Side == domain.SideBid
		}
		return result[i].Rank < result[j].Rank
	})
	return result, nil
}

// Count returns the number of stored rows across all series.
func (s *PointStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events) + len(s.stats) + len(s.depth)
}

// Batches returns the number of accepted non-empty batches.
func (s *PointStore) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}
