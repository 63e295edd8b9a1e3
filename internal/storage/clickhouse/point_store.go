package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/storage"
)

// PointStore implements storage.Store using ClickHouse.
// A batch is sent as one insert per series it contains.
type PointStore struct {
	conn *Conn
}

// NewPointStore creates a new PointStore.
func NewPointStore(conn *Conn) *PointStore {
	return &PointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.Store = (*PointStore)(nil)

// WriteBatch inserts all points, grouped per table.
func (s *PointStore) WriteBatch(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	b, err := storage.Partition(points)
	if err != nil {
		return err
	}

	if err := s.insertEvents(ctx, b.Events); err != nil {
		return err
	}
	if err := s.insertStats(ctx, b.Stats); err != nil {
		return err
	}
	return s.insertDepth(ctx, b.Depth)
}

func (s *PointStore) insertEvents(ctx context.Context, rows []*storage.EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO whale_events (
			session_id, symbol, timestamp_ms, source, kind, side,
			price, volume, total_volume, usd_value, category, distance_from_mid_pct
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare whale_events batch: %w", err)
	}

	for _, e := range rows {
		err = batch.Append(
			e.SessionID, e.Symbol, e.Timestamp.UnixMilli(), string(e.Source), e.Kind, e.Side,
			e.Price, e.Volume, e.TotalVolume, e.Classification.USDValue,
			string(e.Classification.Category), e.DistanceFromMidPct,
		)
		if err != nil {
			return fmt.Errorf("append whale event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send whale_events batch: %w", err)
	}
	return nil
}

func (s *PointStore) insertStats(ctx context.Context, rows []*storage.StatsRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO aggregate_stats (
			session_id, symbol, timestamp_ms, best_bid, best_ask, spread, spread_pct,
			mid_price, bid_volume_total, ask_volume_total, imbalance,
			band_pct, band_bid_volume, band_ask_volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare aggregate_stats batch: %w", err)
	}

	for _, st := range rows {
		pct := make([]decimal.Decimal, len(st.Bands))
		bid := make([]decimal.Decimal, len(st.Bands))
		ask := make([]decimal.Decimal, len(st.Bands))
		for i, band := range st.Bands {
			pct[i], bid[i], ask[i] = band.Pct, band.BidVolume, band.AskVolume
		}

		err = batch.Append(
			st.SessionID, st.Symbol, st.Timestamp.UnixMilli(), st.BestBid, st.BestAsk,
			st.Spread, st.SpreadPct, st.MidPrice, st.BidVolumeTotal, st.AskVolumeTotal,
			st.Imbalance, pct, bid, ask,
		)
		if err != nil {
			return fmt.Errorf("append aggregate stats: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send aggregate_stats batch: %w", err)
	}
	return nil
}

func (s *PointStore) insertDepth(ctx context.Context, rows []*storage.DepthRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO depth_levels (
			session_id, symbol, timestamp_ms, sequence, side, rank, price, volume, order_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare depth_levels batch: %w", err)
	}

	for _, d := range rows {
		err = batch.Append(
			d.SessionID, d.Symbol, d.TimestampMs, d.Sequence, string(d.Side), uint16(d.Rank),
			d.Level.Price, d.Level.Volume, uint32(d.Level.OrderCount),
		)
		if err != nil {
			return fmt.Errorf("append depth level: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send depth_levels batch: %w", err)
	}
	return nil
}

// EventsByTimeRange retrieves events for symbol within [start, end] (inclusive).
func (s *PointStore) EventsByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*storage.EventRow, error) {
	query := `
		SELECT session_id, symbol, timestamp_ms, source, kind, side,
			price, volume, total_volume, usd_value, category, distance_from_mid_pct
		FROM whale_events
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start, end)
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
		SELECT session_id, symbol, timestamp_ms, best_bid, best_ask, spread, spread_pct,
			mid_price, bid_volume_total, ask_volume_total, imbalance,
			band_pct, band_bid_volume, band_ask_volume
		FROM aggregate_stats
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query stats by time range: %w", err)
	}
	defer rows.Close()

	var result []*storage.StatsRow
	for rows.Next() {
		var (
			st            storage.StatsRow
			tsMs          int64
			pct, bid, ask []decimal.Decimal
		)
		err := rows.Scan(
			&st.SessionID, &st.Symbol, &tsMs, &st.BestBid, &st.BestAsk, &st.Spread,
			&st.SpreadPct, &st.MidPrice, &st.BidVolumeTotal, &st.AskVolumeTotal,
			&st.Imbalance, &pct, &bid, &ask,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate stats: %w", err)
		}
		st.Timestamp = time.UnixMilli(tsMs)
		st.Bands = zipBands(pct, bid, ask)
		result = append(result, &st)
	}
	return result, rows.Err()
}

// DepthBySequence retrieves the levels of one snapshot, bids then asks by rank.
func (s *PointStore) DepthBySequence(ctx context.Context, symbol string, sequence int64) ([]*storage.DepthRow, error) {
	query := `
		SELECT session_id, symbol, timestamp_ms, sequence, side, rank, price, volume, order_count
		FROM depth_levels
		WHERE symbol = ? AND sequence = ?
		ORDER BY side = 'bid' DESC, rank ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, sequence)
	if err != nil {
		return nil, fmt.Errorf("query depth by sequence: %w", err)
	}
	defer rows.Close()

	var result []*storage.DepthRow
	for rows.Next() {
		var (
			d          storage.DepthRow
			side       string
			rank       uint16
			orderCount uint32
		)
		err := rows.Scan(
			&d.SessionID, &d.Symbol, &d.TimestampMs, &d.Sequence, &side, &rank,
			&d.Level.Price, &d.Level.Volume, &orderCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan depth level: %w", err)
		}
		d.Side = domain.Side(side)
		d.Rank = int(rank)
		d.Level.OrderCount = int(orderCount)
		result = append(result, &d)
	}
	return result, rows.Err()
}

func zipBands(pct, bid, ask []decimal.Decimal) []domain.DepthBand {
	n := min(len(pct), len(bid), len(ask))
	bands := make([]domain.DepthBand, n)
	for i := 0; i < n; i++ {
		bands[i] = domain.DepthBand{Pct: pct[i], BidVolume: bid[i], AskVolume: ask[i]}
	}
	return bands
}

