// Package ingestion turns decoded venue messages into persistence points:
// snapshot → diff → classify → stats, and trade → classify.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
	"depth-whale-monitor/internal/orderbook"
	"depth-whale-monitor/internal/stats"
	"depth-whale-monitor/internal/whale"
)

// PointQueue accepts points for the batch writer.
type PointQueue interface {
	Enqueue(ctx context.Context, p domain.Point) error
}

// Notifier receives whale events for out-of-band delivery. Notify must not block.
type Notifier interface {
	Notify(ev domain.WhaleEvent)
}

// StatsPublisher receives the latest stats for a cache. Offer must not block.
type StatsPublisher interface {
	Offer(st domain.AggregateStats)
}

// Config controls what the pipeline emits.
type Config struct {
	Symbol     string // when set, messages for other symbols are rejected
	StatsEvery int    // emit aggregate stats every N snapshots; default 1
	DepthEvery int    // emit raw depth levels every N snapshots; 0 disables
}

// Options contains the pipeline's collaborators.
type Options struct {
	Store      *orderbook.Store
	Calculator *stats.Calculator
	Classifier *whale.Classifier
	Queue      PointQueue
	Notifier   Notifier
	StatsCache StatsPublisher
	Logger     *log.Logger
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Snapshots   int64
	Rejected    int64
	DiffEvents  int64
	Trades      int64
	WhaleEvents int64
}

// Pipeline processes messages for one symbol. It is owned by a single
// goroutine and is not safe for concurrent use.
type Pipeline struct {
	cfg        Config
	store      *orderbook.Store
	calc       *stats.Calculator
	classifier *whale.Classifier
	trades     *TradeListener
	queue      PointQueue
	notifier   Notifier
	cache      StatsPublisher
	logger     *log.Logger

	session      uuid.UUID
	sinceReset   int64
	lastMid      decimal.Decimal
	evictedTotal int64
	counters     Stats
}

// NewPipeline creates a pipeline. Store, Calculator and Classifier default to
// their package defaults when nil; Queue is required.
func NewPipeline(cfg Config, opts Options) *Pipeline {
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 1
	}

	store := opts.Store
	if store == nil {
		store = orderbook.NewStore(orderbook.DefaultConfig())
	}
	calc := opts.Calculator
	if calc == nil {
		calc = stats.NewCalculator(stats.DefaultBands())
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = whale.NewClassifier(whale.DefaultThresholds())
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Pipeline{
		cfg:        cfg,
		store:      store,
		calc:       calc,
		classifier: classifier,
		trades:     NewTradeListener(classifier),
		queue:      opts.Queue,
		notifier:   opts.Notifier,
		cache:      opts.StatsCache,
		logger:     logger,
		session:    uuid.New(),
	}
}

// Reset starts a new session: book state is discarded so the next snapshot
// becomes a silent baseline, and every later point carries session.
func (p *Pipeline) Reset(session uuid.UUID, clearHistory bool) {
	p.store.Reset(clearHistory)
	p.session = session
	p.sinceReset = 0
	p.lastMid = decimal.Zero
}

// Session returns the current session ID.
func (p *Pipeline) Session() uuid.UUID {
	return p.session
}

// HandleSnapshot diffs snap against the previous one and enqueues whale
// events, aggregate stats and sampled depth levels. An invalid snapshot is
// rejected with ErrInvalidSnapshot before any state changes.
func (p *Pipeline) HandleSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	start := time.Now()

	NormalizeSnapshot(&snap)
	if err := p.checkSymbol(snap.Symbol); err != nil {
		p.counters.Rejected++
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := ValidateSnapshot(&snap); err != nil {
		p.counters.Rejected++
		return err
	}

	diffs := p.store.Apply(snap)
	current, _ := p.store.Current()
	st := p.calc.Compute(current)
	p.lastMid = st.MidPrice
	p.sinceReset++
	p.counters.Snapshots++
	p.counters.DiffEvents += int64(len(diffs))

	for _, d := range diffs {
		observability.RecordDiffEvent(snap.Symbol, string(d.Kind))
		ev, ok := p.classifier.ClassifyDiff(snap.Symbol, d, st.MidPrice)
		if !ok {
			continue
		}
		if err := p.emitWhale(ctx, ev); err != nil {
			return err
		}
	}

	if (p.sinceReset-1)%int64(p.cfg.StatsEvery) == 0 {
		if err := p.queue.Enqueue(ctx, domain.NewStatsPoint(p.session, st)); err != nil {
			return fmt.Errorf("enqueue stats: %w", err)
		}
		if p.cache != nil {
			p.cache.Offer(st)
		}
	}

	if p.cfg.DepthEvery > 0 && (p.sinceReset-1)%int64(p.cfg.DepthEvery) == 0 {
		if err := p.emitDepth(ctx, current); err != nil {
			return err
		}
	}

	evicted := p.store.Evicted()
	observability.RecordEvicted(snap.Symbol, int(evicted-p.evictedTotal))
	p.evictedTotal = evicted
	observability.RecordSnapshot(snap.Symbol, snap.Sequence, time.Since(start))
	return nil
}

// HandleTrades classifies trades in timestamp order against the latest mid.
// Invalid trades are skipped and reported together in the returned error;
// valid trades are still processed.
func (p *Pipeline) HandleTrades(ctx context.Context, trades []domain.TradeEvent) error {
	SortTrades(trades)

	var invalid []error
	for _, tr := range trades {
		if err := p.checkSymbol(tr.Symbol); err != nil {
			invalid = append(invalid, fmt.Errorf("%w: %v", ErrInvalidTrade, err))
			continue
		}

		ev, ok, err := p.trades.Handle(tr, p.lastMid)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		p.counters.Trades++
		if !ok {
			continue
		}
		if err := p.emitWhale(ctx, ev); err != nil {
			return err
		}
	}
	return errors.Join(invalid...)
}

// LastMid returns the mid price of the latest snapshot, zero before the first.
func (p *Pipeline) LastMid() decimal.Decimal {
	return p.lastMid
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return p.counters
}

func (p *Pipeline) emitWhale(ctx context.Context, ev domain.WhaleEvent) error {
	p.counters.WhaleEvents++
	observability.RecordWhale(ev.Symbol, string(ev.Source), string(ev.Classification.Category))

	if err := p.queue.Enqueue(ctx, domain.NewEventPoint(p.session, ev)); err != nil {
		return fmt.Errorf("enqueue whale event: %w", err)
	}
	if p.notifier != nil {
		p.notifier.Notify(ev)
	}
	return nil
}

func (p *Pipeline) emitDepth(ctx context.Context, snap domain.OrderBookSnapshot) error {
	for _, side := range domain.Sides {
		for rank, lvl := range snap.Levels(side) {
			pt := domain.NewDepthPoint(p.session, domain.DepthLevelPoint{
				Symbol:      snap.Symbol,
				Sequence:    snap.Sequence,
				Side:        side,
				Rank:        rank,
				Level:       lvl,
				TimestampMs: snap.ReceivedAt.UnixMilli(),
			})
			if err := p.queue.Enqueue(ctx, pt); err != nil {
				return fmt.Errorf("enqueue depth level: %w", err)
			}
		}
	}
	return nil
}

func (p *Pipeline) checkSymbol(symbol string) error {
	if p.cfg.Symbol != "" && symbol != p.cfg.Symbol {
		return fmt.Errorf("symbol %q, want %q", symbol, p.cfg.Symbol)
	}
	return nil
}
