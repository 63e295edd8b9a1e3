package batch

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("point queue closed")

// QueueConfig bounds the queue between producers and the writer.
type QueueConfig struct {
	Capacity int
	// MaxWait is how long Enqueue blocks on a full queue before dropping the
	// oldest pending point.
	MaxWait time.Duration
}

// DefaultQueueConfig returns the default queue bounds.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity: 10000,
		MaxWait:  50 * time.Millisecond,
	}
}

// Queue is a bounded point queue with drop-oldest backpressure.
// Any number of producers may Enqueue; the writer is the only consumer.
type Queue struct {
	ch      chan domain.Point
	maxWait time.Duration
	logger  *log.Logger

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// NewQueue allocates a queue. A nil logger uses log.Default().
func NewQueue(cfg QueueConfig, logger *log.Logger) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Queue{
		ch:      make(chan domain.Point, cfg.Capacity),
		maxWait: cfg.MaxWait,
		logger:  logger,
	}
}

// Enqueue adds p. On a full queue it waits up to MaxWait, then evicts the
// oldest pending point to make room. It returns ErrQueueClosed after Close and
// ctx.Err() if ctx ends while waiting.
func (q *Queue) Enqueue(ctx context.Context, p domain.Point) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- p:
		q.updateDepth()
		return nil
	default:
	}

	if q.maxWait > 0 {
		timer := time.NewTimer(q.maxWait)
		select {
		case q.ch <- p:
			timer.Stop()
			q.updateDepth()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		select {
		case old := <-q.ch:
			n := q.dropped.Add(1)
			observability.RecordQueueDrop()
			q.logger.Printf("WARN: write queue full, dropped oldest %s point for %s (total dropped %d)",
				old.Kind, old.Symbol(), n)
		default:
		}

		select {
		case q.ch <- p:
			q.updateDepth()
			return nil
		default:
		}
	}
}

// Close stops accepting points. Points already queued remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// C returns the consumer side. It is closed once the queue is closed and drained.
func (q *Queue) C() <-chan domain.Point {
	return q.ch
}

// Len returns the number of pending points.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of points evicted by backpressure.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue) updateDepth() {
	observability.UpdateQueueDepth(len(q.ch))
}
