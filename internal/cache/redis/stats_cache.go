package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
	"depth-whale-monitor/internal/storage"
)

// StatsCache keeps one hash per symbol holding the most recent stats.
//
// Key schema:
//
//	{prefix}{symbol} - hash with best_bid, best_ask, spread, spread_pct, mid,
//	                   bid_total, ask_total, imbalance, ts_ms, bands and
//	                   band:{i}:pct / band:{i}:bid / band:{i}:ask fields
type StatsCache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *log.Logger

	// latest holds at most one pending value; Offer replaces it
	latest chan domain.AggregateStats
}

// StatsCacheConfig configures a StatsCache.
type StatsCacheConfig struct {
	KeyPrefix string
	// TTL expires a symbol's hash when updates stop. Zero disables expiry.
	TTL time.Duration
}

// NewStatsCache creates a StatsCache backed by c.
func NewStatsCache(c *Client, cfg StatsCacheConfig, logger *log.Logger) *StatsCache {
	if logger == nil {
		logger = log.Default()
	}
	return &StatsCache{
		rdb:    c.rdb,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: logger,
		latest: make(chan domain.AggregateStats, 1),
	}
}

func (c *StatsCache) key(symbol string) string { return c.prefix + symbol }

// Offer hands st to the publisher without blocking. A value not yet published
// is replaced.
func (c *StatsCache) Offer(st domain.AggregateStats) {
	for {
		select {
		case c.latest <- st:
			return
		default:
		}
		select {
		case <-c.latest:
		default:
		}
	}
}

// Run publishes offered stats until ctx is cancelled. Write failures are
// logged and counted.
func (c *StatsCache) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-c.latest:
			writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := c.Set(writeCtx, st)
			cancel()
			if err != nil && ctx.Err() == nil {
				observability.RecordCacheError()
				c.logger.Printf("WARN: stats cache %s: %v", st.Symbol, err)
			}
		}
	}
}

// Set replaces the cached stats for st.Symbol.
func (c *StatsCache) Set(ctx context.Context, st domain.AggregateStats) error {
	key := c.key(st.Symbol)
	fields := statsFields(st)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set stats %s: %w", st.Symbol, err)
	}
	return nil
}

func statsFields(st domain.AggregateStats) map[string]any {
	fields := map[string]any{
		"best_bid":   st.BestBid.String(),
		"best_ask":   st.BestAsk.String(),
		"spread":     st.Spread.String(),
		"spread_pct": st.SpreadPct.String(),
		"mid":        st.MidPrice.String(),
		"bid_total":  st.BidVolumeTotal.String(),
		"ask_total":  st.AskVolumeTotal.String(),
		"imbalance":  st.Imbalance.String(),
		"ts_ms":      strconv.FormatInt(st.Timestamp.UnixMilli(), 10),
		"bands":      strconv.Itoa(len(st.Bands)),
	}
	for i, b := range st.Bands {
		idx := strconv.Itoa(i)
		fields["band:"+idx+":pct"] = b.Pct.String()
		fields["band:"+idx+":bid"] = b.BidVolume.String()
		fields["band:"+idx+":ask"] = b.AskVolume.String()
	}
	return fields
}

// Get returns the cached stats for symbol, or storage.ErrNotFound.
func (c *StatsCache) Get(ctx context.Context, symbol string) (domain.AggregateStats, error) {
	vals, err := c.rdb.HGetAll(ctx, c.key(symbol)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.AggregateStats{}, fmt.Errorf("redis: get stats %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.AggregateStats{}, storage.ErrNotFound
	}
	err = nil

	st := domain.AggregateStats{Symbol: symbol}
	parse := func(field string, dst *decimal.Decimal) {
		if err != nil {
			return
		}
		*dst, err = decimal.NewFromString(vals[field])
		if err != nil {
			err = fmt.Errorf("redis: field %s: %w", field, err)
		}
	}
	parse("best_bid", &st.BestBid)
	parse("best_ask", &st.BestAsk)
	parse("spread", &st.Spread)
	parse("spread_pct", &st.SpreadPct)
	parse("mid", &st.MidPrice)
	parse("bid_total", &st.BidVolumeTotal)
	parse("ask_total", &st.AskVolumeTotal)
	parse("imbalance", &st.Imbalance)

	n, convErr := strconv.Atoi(vals["bands"])
	if err == nil && convErr != nil {
		err = fmt.Errorf("redis: field bands: %w", convErr)
	}
	for i := 0; i < n && err == nil; i++ {
		var b domain.DepthBand
		idx := strconv.Itoa(i)
		parse("band:"+idx+":pct", &b.Pct)
		parse("band:"+idx+":bid", &b.BidVolume)
		parse("band:"+idx+":ask", &b.AskVolume)
		st.Bands = append(st.Bands, b)
	}

	tsMs, convErr := strconv.ParseInt(vals["ts_ms"], 10, 64)
	if err == nil && convErr != nil {
		err = fmt.Errorf("redis: field ts_ms: %w", convErr)
	}
	if err != nil {
		return domain.AggregateStats{}, err
	}
	st.Timestamp = time.UnixMilli(tsMs).UTC()
	return st, nil
}
