// Package batch buffers persistence points and flushes them to a sink on size
// or time triggers, with retry and a final forced flush on shutdown.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
	"depth-whale-monitor/internal/storage"
)

// Config controls flush triggers and the retry budget.
type Config struct {
	BatchSize     int           // flush when the buffer holds this many points
	FlushInterval time.Duration // flush when this long has passed since the last flush

	MaxAttempts    int // write attempts per batch, including the first
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	WriteTimeout   time.Duration // per attempt

	MaxInFlight       int // concurrent batch writes before the writer blocks
	FinalFlushTimeout time.Duration
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         500,
		FlushInterval:     time.Second,
		MaxAttempts:       3,
		RetryBaseDelay:    200 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxInFlight:       2,
		FinalFlushTimeout: 30 * time.Second,
	}
}

// DeadLetter receives batches dropped after exhausting retries.
type DeadLetter interface {
	Archive(ctx context.Context, points []domain.Point, cause error) error
}

// Options configures optional writer collaborators.
type Options struct {
	Logger     *log.Logger
	DeadLetter DeadLetter
}

// Stats is a snapshot of writer counters.
type Stats struct {
	Flushes        int64
	PointsFlushed  int64
	Retries        int64
	BatchesDropped int64
	PointsDropped  int64
}

// Writer drains a Queue into a storage.PointSink.
type Writer struct {
	cfg        Config
	sink       storage.PointSink
	queue      *Queue
	logger     *log.Logger
	deadLetter DeadLetter

	inFlight chan struct{}
	wg       sync.WaitGroup

	finalOnce sync.Once
	finalErr  error

	flushes        atomic.Int64
	pointsFlushed  atomic.Int64
	retries        atomic.Int64
	batchesDropped atomic.Int64
	pointsDropped  atomic.Int64
}

// NewWriter creates a writer. Zero config fields take their defaults.
func NewWriter(cfg Config, sink storage.PointSink, queue *Queue, opts Options) *Writer {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = max(def.RetryMaxDelay, cfg.RetryBaseDelay)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.FinalFlushTimeout <= 0 {
		cfg.FinalFlushTimeout = def.FinalFlushTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Writer{
		cfg:        cfg,
		sink:       sink,
		queue:      queue,
		logger:     logger,
		deadLetter: opts.DeadLetter,
		inFlight:   make(chan struct{}, cfg.MaxInFlight),
	}
}

// Run consumes the queue until it is closed or ctx is done, then waits for
// in-flight writes and performs the final forced flush of everything still
// buffered. Callers should close the queue after the last producer has
// stopped; points enqueued after ctx is done are not seen.
// Returns an error only if the final flush failed.
func (w *Writer) Run(ctx context.Context) error {
	buf := make([]domain.Point, 0, w.cfg.BatchSize)

	timer := time.NewTimer(w.cfg.FlushInterval)
	defer timer.Stop()

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.cfg.FlushInterval)
	}

	for {
		select {
		case p, ok := <-w.queue.C():
			if !ok {
				return w.finalFlush(ctx, buf)
			}
			buf = append(buf, p)
			if len(buf) >= w.cfg.BatchSize {
				w.dispatch(ctx, buf)
				buf = make([]domain.Point, 0, w.cfg.BatchSize)
				resetTimer()
			}

		case <-timer.C:
			if len(buf) > 0 {
				w.dispatch(ctx, buf)
				buf = make([]domain.Point, 0, w.cfg.BatchSize)
			}
			timer.Reset(w.cfg.FlushInterval)

		case <-ctx.Done():
			buf = w.drainQueued(buf)
			return w.finalFlush(ctx, buf)
		}
	}
}

// drainQueued moves already-queued points into buf without blocking.
func (w *Writer) drainQueued(buf []domain.Point) []domain.Point {
	for {
		select {
		case p, ok := <-w.queue.C():
			if !ok {
				return buf
			}
			buf = append(buf, p)
		default:
			return buf
		}
	}
}

// dispatch starts an asynchronous write, blocking while MaxInFlight writes
// are already running.
func (w *Writer) dispatch(ctx context.Context, points []domain.Point) {
	w.inFlight <- struct{}{}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.inFlight }()
		_ = w.write(context.WithoutCancel(ctx), points)
	}()
}

// finalFlush runs at most once per writer.
func (w *Writer) finalFlush(ctx context.Context, points []domain.Point) error {
	w.finalOnce.Do(func() {
		w.wg.Wait()

		if len(points) == 0 {
			w.logger.Printf("final flush: nothing buffered")
			return
		}

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FinalFlushTimeout)
		defer cancel()

		w.logger.Printf("final flush: writing %d points", len(points))
		if err := w.write(flushCtx, points); err != nil {
			w.finalErr = fmt.Errorf("final flush: %w", err)
		}
	})
	return w.finalErr
}

// write persists one batch with retries. After the last failed attempt the
// batch is dropped and handed to the dead-letter archive.
func (w *Writer) write(ctx context.Context, points []domain.Point) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryBaseDelay
	b.MaxInterval = w.cfg.RetryMaxDelay
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
		defer cancel()

		start := time.Now()
		err := w.sink.WriteBatch(attemptCtx, points)
		observability.RecordFlush(len(points), time.Since(start), err)
		if errors.Is(err, storage.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		w.retries.Add(1)
		observability.RecordFlushRetry()
		w.logger.Printf("WARN: write attempt %d/%d of %d points failed, retrying in %s: %v",
			attempt, w.cfg.MaxAttempts, len(points), next.Round(time.Millisecond), err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		w.flushes.Add(1)
		w.pointsFlushed.Add(int64(len(points)))
		return nil
	}

	w.batchesDropped.Add(1)
	w.pointsDropped.Add(int64(len(points)))
	observability.RecordBatchDropped(len(points))
	w.logger.Printf("ERROR: dropping batch of %d points after %d attempts: %v", len(points), attempt, err)

	if w.deadLetter != nil {
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.WriteTimeout)
		defer cancel()
		if aerr := w.deadLetter.Archive(archiveCtx, points, err); aerr != nil {
			w.logger.Printf("WARN: dead-letter archive failed: %v", aerr)
		} else {
			observability.RecordDeadLetter()
		}
	}
	return err
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Flushes:        w.flushes.Load(),
		PointsFlushed:  w.pointsFlushed.Load(),
		Retries:        w.retries.Load(),
		BatchesDropped: w.batchesDropped.Load(),
		PointsDropped:  w.pointsDropped.Load(),
	}
}
