package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/storage"
)

// PointStore implements storage.Store using PostgreSQL.
// Each batch is written in a single transaction.
type PointStore struct {
	pool *Pool
}

// NewPointStore creates a new PointStore.
func NewPointStore(pool *Pool) *PointStore {
	return &PointStore{pool: pool}
}

var _ storage.Store = (*PointStore)(nil)

type bandJSON struct {
	Pct       decimal.Decimal `json:"pct"`
	BidVolume decimal.Decimal `json:"bid_volume"`
	AskVolume decimal.Decimal `json:"ask_volume"`
}

// WriteBatch inserts all points atomically.
func (s *PointStore) WriteBatch(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	b, err := storage.Partition(points)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range b.Events {
		batch.Queue(`
			INSERT INTO whale_events (
				session_id, symbol, timestamp_ms, source, kind, side,
				price, volume, total_volume, usd_value, category, distance_from_mid_pct
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			e.SessionID, e.Symbol, e.Timestamp.UnixMilli(), string(e.Source), e.Kind, e.Side,
			e.Price, e.Volume, e.TotalVolume, e.Classification.USDValue,
			string(e.Classification.Category), e.DistanceFromMidPct,
		)
	}
	for _, st := range b.Stats {
		bands := make([]bandJSON, len(st.Bands))
		for i, band := range st.Bands {
			bands[i] = bandJSON(band)
		}
		bandsJSON, err := json.Marshal(bands)
		if err != nil {
			return fmt.Errorf("marshal bands: %w", err)
		}
		batch.Queue(`
			INSERT INTO aggregate_stats (
				session_id, symbol, timestamp_ms, best_bid, best_ask, spread, spread_pct,
				mid_price, bid_volume_total, ask_volume_total, imbalance, bands
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			st.SessionID, st.Symbol, st.Timestamp.UnixMilli(), st.BestBid, st.BestAsk,
			st.Spread, st.SpreadPct, st.MidPrice, st.BidVolumeTotal, st.AskVolumeTotal,
			st.Imbalance, bandsJSON,
		)
	}
	for _, d := range b.Depth {
		batch.Queue(`
			INSERT INTO depth_levels (
				session_id, symbol, timestamp_ms, sequence, side, rank, price, volume, order_count
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			d.SessionID, d.Symbol, d.TimestampMs, d.Sequence, string(d.Side), d.Rank,
			d.Level.Price, d.Level.Volume, d.Level.OrderCount,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert points: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EventsByTimeRange retrieves events for symbol within [start, end] (inclusive).
func (s *PointStore) EventsByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*storage.EventRow, error) {
	query := `
		SELECT session_id, symbol, timestamp_ms, source, kind, side,
			price::text, volume::text, total_volume::text, usd_value::text,
			category, distance_from_mid_pct::text
		FROM whale_events
		WHERE symbol = $1 AND timestamp_ms >= $2 AND timestamp_ms <= $3
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query events by time range: %w", err)
	}
	defer rows.Close()

	var result []*storage.EventRow
	for rows.Next() {
		var (
			e                storage.EventRow
			tsMs             int64
			source, category string
		)
		err := rows.Scan(
			&e.SessionID, &e.Symbol, &tsMs, &source, &e.Kind, &e.Side,
			&e.Price, &e.Volume, &e.TotalVolume, &e.Classification.USDValue,
			&category, &e.DistanceFromMidPct,
		)
		if err != nil {
			return nil, fmt.Errorf("scan whale event: %w", err)
		}
		e.Timestamp = time.UnixMilli(tsMs)
		e.Source = domain.EventSource(source)
		e.Classification.Category = domain.Category(category)
		e.Classification.PassesThreshold = true
		result = append(result, &e)
	}
	return result, rows.Err()
}

// StatsByTimeRange retrieves stats for symbol within [start, end] (inclusive).
func (s *PointStore) StatsByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*storage.StatsRow, error) {
	query := `
		SELECT session_id, symbol, timestamp_ms, best_bid::text, best_ask::text, spread::text,
			spread_pct::text, mid_price::text, bid_volume_total::text, ask_volume_total::text,
			imbalance::text, bands
		FROM aggregate_stats
		WHERE symbol = $1 AND timestamp_ms >= $2 AND timestamp_ms <= $3
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query stats by time range: %w", err)
	}
	defer rows.Close()

	var result []*storage.StatsRow
	for rows.Next() {
		var (
			st        storage.StatsRow
			tsMs      int64
			bandsJSON []byte
		)
		err := rows.Scan(
			&st.SessionID, &st.Symbol, &tsMs, &st.BestBid, &st.BestAsk, &st.Spread,
			&st.SpreadPct, &st.MidPrice, &st.BidVolumeTotal, &st.AskVolumeTotal,
			&st.Imbalance, &bandsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate stats: %w", err)
		}

		var bands []bandJSON
		if err := json.Unmarshal(bandsJSON, &bands); err != nil {
			return nil, fmt.Errorf("unmarshal bands: %w", err)
		}
		st.Bands = make([]domain.DepthBand, len(bands))
		for i, band := range bands {
			st.Bands[i] = domain.DepthBand(band)
		}
		st.Timestamp = time.UnixMilli(tsMs)
		result = append(result, &st)
	}
	return result, rows.Err()
}

// DepthBySequence retrieves the levels of one snapshot, bids then asks by rank.
func (s *PointStore) DepthBySequence(ctx context.Context, symbol string, sequence int64) ([]*storage.DepthRow, error) {
	query := `
		SELECT session_id, symbol, timestamp_ms, sequence, side, rank,
			price::text, volume::text, order_count
		FROM depth_levels
		WHERE symbol = $1 AND sequence = $2
		ORDER BY side = 'bid' DESC, rank ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, sequence)
	if err != nil {
		return nil, fmt.Errorf("query depth by sequence: %w", err)
	}
	defer rows.Close()

	var result []*storage.DepthRow
	for rows.Next() {
		var (
			d    storage.DepthRow
			side string
		)
		err := rows.Scan(
			&d.SessionID, &d.Symbol, &d.TimestampMs, &d.Sequence, &side, &d.Rank,
			&d.Level.Price, &d.Level.Volume, &d.Level.OrderCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan depth level: %w", err)
		}
		d.Side = domain.Side(side)
		result = append(result, &d)
	}
	return result, rows.Err()
}
