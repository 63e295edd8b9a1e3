package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/venue"
)

var testLogger = log.New(io.Discard, "", 0)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Symbol = "BTC"
	cfg.Depth = 5
	cfg.LivenessTimeout = time.Second
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func book(seq int64) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Symbol:     "BTC",
		Sequence:   seq,
		ReceivedAt: time.UnixMilli(1_700_000_000_000 + seq).UTC(),
		Bids:       []domain.PriceLevel{{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), OrderCount: 1}},
		Asks:       []domain.PriceLevel{{Price: decimal.NewFromInt(101), Volume: decimal.NewFromInt(1), OrderCount: 1}},
	}
}

func depthMsg(seq int64) venue.Message {
	snap := book(seq)
	return venue.Message{Kind: venue.KindDepth, Channel: venue.ChannelDepth, Depth: &snap}
}

// fakeFeed replays scripted messages. The channel stays open unless
// closeAfter is set, in which case it closes once the script is consumed.
type fakeFeed struct {
	msgs         chan venue.Message
	subscribeErr error
	readErr      error

	mu         sync.Mutex
	subscribed []string
	closed     bool
}

func newFakeFeed(closeAfter bool, script ...venue.Message) *fakeFeed {
	f := &fakeFeed{msgs: make(chan venue.Message, len(script)+1)}
	for _, m := range script {
		f.msgs <- m
	}
	if closeAfter {
		close(f.msgs)
	}
	return f
}

func (f *fakeFeed) Subscribe(_ context.Context, channel, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, channel)
	return nil
}

func (f *fakeFeed) Messages() <-chan venue.Message { return f.msgs }

func (f *fakeFeed) Err() error { return f.readErr }

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// scriptedDialer hands out feeds in order; once exhausted it fails.
type scriptedDialer struct {
	mu    sync.Mutex
	feeds []*fakeFeed
	calls int
}

var errDialRefused = errors.New("connection refused")

func (d *scriptedDialer) dial(context.Context) (Feed, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.feeds) == 0 {
		return nil, errDialRefused
	}
	f := d.feeds[0]
	d.feeds = d.feeds[1:]
	return f, nil
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type resetCall struct {
	Session      uuid.UUID
	ClearHistory bool
	AfterSeq     int64 // last snapshot handled before the reset
}

type recordingHandler struct {
	mu        sync.Mutex
	resets    []resetCall
	snapshots []int64
	trades    int
	sessions  map[int64]uuid.UUID

	current  uuid.UUID
	snapErr  func(seq int64) error
	tradeErr error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{sessions: make(map[int64]uuid.UUID)}
}

func (h *recordingHandler) Reset(session uuid.UUID, clearHistory bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var last int64
	if n := len(h.snapshots); n > 0 {
		last = h.snapshots[n-1]
	}
	h.current = session
	h.resets = append(h.resets, resetCall{Session: session, ClearHistory: clearHistory, AfterSeq: last})
}

func (h *recordingHandler) HandleSnapshot(_ context.Context, snap domain.OrderBookSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapErr != nil {
		if err := h.snapErr(snap.Sequence); err != nil {
			return err
		}
	}
	h.snapshots = append(h.snapshots, snap.Sequence)
	h.sessions[snap.Sequence] = h.current
	return nil
}

func (h *recordingHandler) HandleTrades(_ context.Context, trades []domain.TradeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trades += len(trades)
	return h.tradeErr
}

func (h *recordingHandler) Snapshots() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.snapshots...)
}

func (h *recordingHandler) Resets() []resetCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]resetCall(nil), h.resets...)
}

func (h *recordingHandler) SessionOf(seq int64) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[seq]
}

func (h *recordingHandler) Trades() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trades
}

// runManager starts m.Run in the background and returns its result channel.
func runManager(ctx context.Context, m *Manager) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return done
}
