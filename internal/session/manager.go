// Package session owns the venue connection lifecycle for one symbol: it
// dials, subscribes, feeds messages to the pipeline in order, detects
// sequence gaps and dead connections, and reconnects with backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/ingestion"
	"depth-whale-monitor/internal/observability"
	"depth-whale-monitor/internal/storage"
	"depth-whale-monitor/internal/venue"
)

// ErrRetriesExhausted is returned by Run when MaxRetries consecutive
// connection attempts have failed.
var ErrRetriesExhausted = errors.New("reconnect retries exhausted")

// Feed is one live venue connection.
type Feed interface {
	Subscribe(ctx context.Context, channel, symbol string, depth int) error
	Messages() <-chan venue.Message
	Err() error
	Close() error
}

// Dialer opens a new Feed.
type Dialer func(ctx context.Context) (Feed, error)

// VenueDialer returns a Dialer that connects to endpoint with the venue client.
func VenueDialer(endpoint string, cfg *venue.Config) Dialer {
	return func(ctx context.Context) (Feed, error) {
		return venue.Dial(ctx, endpoint, cfg)
	}
}

// Handler consumes messages in order. *ingestion.Pipeline implements it.
type Handler interface {
	Reset(session uuid.UUID, clearHistory bool)
	HandleSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error
	HandleTrades(ctx context.Context, trades []domain.TradeEvent) error
}

var _ Handler = (*ingestion.Pipeline)(nil)

// Config configures the session manager.
type Config struct {
	Symbol string
	// Depth is the visible window requested from the venue.
	Depth int
	// LivenessTimeout is how long the connection may stay silent before it
	// is considered dead.
	LivenessTimeout time.Duration

	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter is the backoff randomization factor in [0, 1).
	Jitter float64
	// MaxRetries bounds consecutive failed attempts; 0 retries forever.
	MaxRetries int

	// ResetHistoryOnResync also clears the historical price set on reconnect
	// and gap resync.
	ResetHistoryOnResync bool
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Depth:           20,
		LivenessTimeout: 30 * time.Second,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
		MaxRetries:      0,
	}
}

// Options holds the manager's collaborators.
type Options struct {
	Dialer   Dialer
	Handler  Handler
	Sessions storage.SessionLog // optional
	Logger   *log.Logger
}

// Stats holds connection counters.
type Stats struct {
	Connects     int64
	Reconnects   int64
	Gaps         int64
	Duplicates   int64 // repeated version, skipped
	Malformed    int64
	Rejected     int64
	Snapshots    int64
	TradeBatches int64
}

// Manager runs the connection loop. Run must be called at most once.
type Manager struct {
	cfg      Config
	dial     Dialer
	handler  Handler
	sessions storage.SessionLog
	logger   *log.Logger

	mu    sync.Mutex
	stats Stats

	// owned by the Run goroutine
	session     uuid.UUID
	reason      storage.SessionReason
	haveVersion bool
	lastVersion int64
}

// NewManager creates a session manager.
func NewManager(cfg Config, opts Options) *Manager {
	def := DefaultConfig()
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = def.LivenessTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(def.MaxDelay, cfg.BaseDelay)
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = def.Jitter
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Manager{
		cfg:      cfg,
		dial:     opts.Dialer,
		handler:  opts.Handler,
		sessions: opts.Sessions,
		logger:   logger,
	}
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) count(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}

// connError is a failed or ended connection with the metric cause label.
type connError struct {
	cause string
	err   error
}

func (e *connError) Error() string { return e.cause + ": " + e.err.Error() }
func (e *connError) Unwrap() error { return e.err }

// Run connects and processes messages until ctx is cancelled, returning nil,
// or until the retry budget is spent, returning ErrRetriesExhausted. A
// handler error other than a rejected message is returned as is.
func (m *Manager) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.BaseDelay
	bo.RandomizationFactor = m.cfg.Jitter
	bo.Multiplier = m.cfg.Multiplier
	bo.MaxInterval = m.cfg.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	m.reason = storage.ReasonConnect
	failures := 0

	for {
		established, err := m.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var ce *connError
		if !errors.As(err, &ce) {
			return err
		}

		if established {
			bo.Reset()
			failures = 0
		}
		failures++
		if m.cfg.MaxRetries > 0 && failures > m.cfg.MaxRetries {
			m.logger.Printf("ERROR: %s: giving up after %d attempts: %v", m.cfg.Symbol, failures, err)
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrRetriesExhausted, m.cfg.Symbol, failures, err)
		}

		delay := bo.NextBackOff()
		m.count(func(s *Stats) { s.Reconnects++ })
		observability.RecordReconnect(m.cfg.Symbol, ce.cause)
		m.logger.Printf("WARN: %s: connection lost (%v), reconnecting in %s (attempt %d)",
			m.cfg.Symbol, err, delay.Round(time.Millisecond), failures)
		m.reason = storage.ReasonReconnect

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runOnce runs one connection. established reports whether both
// subscriptions succeeded.
func (m *Manager) runOnce(ctx context.Context) (established bool, err error) {
	feed, err := m.dial(ctx)
	if err != nil {
		return false, &connError{cause: "dial", err: err}
	}
	defer feed.Close()

	for _, ch := range []string{venue.ChannelDepth, venue.ChannelTrades} {
		if err := feed.Subscribe(ctx, ch, m.cfg.Symbol, m.cfg.Depth); err != nil {
			return false, &connError{cause: "subscribe", err: err}
		}
	}

	m.count(func(s *Stats) { s.Connects++ })
	m.begin(m.reason)
	m.logger.Printf("%s: subscribed (session %s, reason %s)", m.cfg.Symbol, m.session, m.reason)

	observability.SetConnected(m.cfg.Symbol, true)
	defer observability.SetConnected(m.cfg.Symbol, false)

	liveness := time.NewTimer(m.cfg.LivenessTimeout)
	defer liveness.Stop()

	msgs := feed.Messages()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()

		case <-liveness.C:
			return true, &connError{
				cause: "liveness",
				err:   fmt.Errorf("no message for %s", m.cfg.LivenessTimeout),
			}

		case msg, ok := <-msgs:
			if !ok {
				err := feed.Err()
				if err == nil {
					err = errors.New("feed closed")
				}
				return true, &connError{cause: "read", err: err}
			}

			if !liveness.Stop() {
				select {
				case <-liveness.C:
				default:
				}
			}
			liveness.Reset(m.cfg.LivenessTimeout)

			if err := m.handle(ctx, msg); err != nil {
				return true, err
			}
		}
	}
}

// begin starts a new session: the handler drops its book state so the next
// snapshot is a silent baseline.
func (m *Manager) begin(reason storage.SessionReason) {
	m.session = uuid.New()
	m.reason = reason
	m.haveVersion = false
	m.lastVersion = 0
	m.handler.Reset(m.session, reason != storage.ReasonConnect && m.cfg.ResetHistoryOnResync)
}

func (m *Manager) handle(ctx context.Context, msg venue.Message) error {
	switch msg.Kind {
	case venue.KindDepth:
		return m.handleDepth(ctx, *msg.Depth)

	case venue.KindTrades:
		m.count(func(s *Stats) { s.TradeBatches++ })
		err := m.handler.HandleTrades(ctx, msg.Trades)
		if errors.Is(err, ingestion.ErrInvalidTrade) {
			m.count(func(s *Stats) { s.Rejected++ })
			m.logger.Printf("WARN: %s: rejected trades: %v", m.cfg.Symbol, err)
			return nil
		}
		return err

	case venue.KindMalformed:
		m.count(func(s *Stats) { s.Malformed++ })
		reason := msg.Channel
		if reason == "" {
			reason = "envelope"
		}
		observability.RecordMalformed(m.cfg.Symbol, reason)
		m.logger.Printf("WARN: %s: skipping malformed message: %v", m.cfg.Symbol, msg.Err)
		return nil

	case venue.KindError:
		return &connError{cause: "venue_error", err: msg.Err}
	}
	return nil
}

func (m *Manager) handleDepth(ctx context.Context, snap domain.OrderBookSnapshot) error {
	switch {
	case !m.haveVersion:
		m.record(ctx, snap.Sequence)

	case snap.Sequence == m.lastVersion:
		m.count(func(s *Stats) { s.Duplicates++ })
		return nil

	case snap.Sequence != m.lastVersion+1:
		m.count(func(s *Stats) { s.Gaps++ })
		observability.RecordGap(m.cfg.Symbol)
		m.logger.Printf("WARN: %s: sequence gap %d -> %d, resyncing", m.cfg.Symbol, m.lastVersion, snap.Sequence)
		m.begin(storage.ReasonResync)
		m.record(ctx, snap.Sequence)
	}

	m.haveVersion = true
	m.lastVersion = snap.Sequence
	m.count(func(s *Stats) { s.Snapshots++ })

	err := m.handler.HandleSnapshot(ctx, snap)
	if errors.Is(err, ingestion.ErrInvalidSnapshot) {
		m.count(func(s *Stats) { s.Rejected++ })
		m.logger.Printf("WARN: %s: rejected snapshot %d: %v", m.cfg.Symbol, snap.Sequence, err)
		return nil
	}
	return err
}

// record writes the session start to the session log. Failures are logged.
func (m *Manager) record(ctx context.Context, sequence int64) {
	if m.sessions == nil {
		return
	}

	rec := &storage.SessionRecord{
		SessionID: m.session,
		Symbol:    m.cfg.Symbol,
		Reason:    m.reason,
		StartedAt: time.Now().UTC(),
		Sequence:  sequence,
	}
	if err := m.sessions.RecordSession(ctx, rec); err != nil {
		m.logger.Printf("WARN: %s: record session %s: %v", m.cfg.Symbol, m.session, err)
	}
}
