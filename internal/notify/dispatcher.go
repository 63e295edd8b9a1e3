// Package notify delivers a subset of whale events to external channels.
// Delivery is fire-and-forget: the pipeline only ever hands an event to a
// bounded buffer, and sender failures are logged and counted.
package notify

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, ev domain.WhaleEvent) error
	Name() string
}

// Config configures a Dispatcher.
type Config struct {
	// MinCategory is the lowest category that is delivered.
	MinCategory domain.Category
	// Buffer is the pending event capacity; a full buffer drops new events.
	Buffer int
	// SendTimeout bounds one delivery to one sender.
	SendTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		MinCategory: domain.CategoryHuge,
		Buffer:      256,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher fans events out to every sender from its own goroutine.
type Dispatcher struct {
	cfg     Config
	senders []Sender
	events  chan domain.WhaleEvent
	logger  *log.Logger

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher. A nil logger uses log.Default().
func NewDispatcher(cfg Config, senders []Sender, logger *log.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.MinCategory.Rank() == 0 {
		cfg.MinCategory = def.MinCategory
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		cfg:     cfg,
		senders: senders,
		events:  make(chan domain.WhaleEvent, cfg.Buffer),
		logger:  logger,
	}
}

// Notify queues ev for delivery if it reaches MinCategory. It never blocks.
func (d *Dispatcher) Notify(ev domain.WhaleEvent) {
	if ev.Classification.Category.Rank() < d.cfg.MinCategory.Rank() {
		return
	}

	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		observability.RecordNotificationDropped()
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.events:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.WhaleEvent) {
	for _, s := range d.senders {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := s.Send(sendCtx, ev)
		cancel()

		observability.RecordNotification(s.Name(), err)
		if err != nil {
			d.failed.Add(1)
			d.logger.Printf("WARN: notify %s: %s %s %s: %v", s.Name(), ev.Symbol, ev.Kind, ev.Classification.Category, err)
			continue
		}
		d.sent.Add(1)
	}
}

// Sent returns the number of successful deliveries across senders.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// Failed returns the number of failed deliveries across senders.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// Dropped returns the number of events dropped on a full buffer.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }
