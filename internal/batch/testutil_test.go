package batch

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"depth-whale-monitor/internal/domain"
)

var testLogger = log.New(io.Discard, "", 0)

func point(i int) domain.Point {
	return domain.NewStatsPoint(uuid.Nil, domain.AggregateStats{
		Symbol:    "BTC",
		Timestamp: time.UnixMilli(int64(i)),
	})
}

// recordingSink records batches and fails the first failFirst calls.
type recordingSink struct {
	mu        sync.Mutex
	batches   [][]domain.Point
	calls     int
	failFirst int
	err       error
	block     chan struct{}
}

func (s *recordingSink) WriteBatch(ctx context.Context, points []domain.Point) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil && (s.failFirst < 0 || s.calls <= s.failFirst) {
		return s.err
	}
	s.batches = append(s.batches, append([]domain.Point(nil), points...))
	return nil
}

func (s *recordingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (s *recordingSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingDeadLetter struct {
	mu      sync.Mutex
	batches [][]domain.Point
}

func (d *recordingDeadLetter) Archive(_ context.Context, points []domain.Point, _ error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, points)
	return nil
}

func (d *recordingDeadLetter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}
