package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"depth-whale-monitor/internal/storage"
)

// SessionLog implements storage.SessionLog using ClickHouse.
type SessionLog struct {
	conn *Conn
}

// NewSessionLog creates a new SessionLog.
func NewSessionLog(conn *Conn) *SessionLog {
	return &SessionLog{conn: conn}
}

var _ storage.SessionLog = (*SessionLog)(nil)

// RecordSession appends a session start.
func (l *SessionLog) RecordSession(ctx context.Context, rec *storage.SessionRecord) error {
	if rec == nil || rec.Symbol == "" {
		return storage.ErrInvalidInput
	}

	err := l.conn.Exec(ctx, `
		INSERT INTO monitor_sessions (session_id, symbol, reason, started_at, first_sequence)
		VALUES (?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Symbol, string(rec.Reason), rec.StartedAt.UTC(), rec.Sequence)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// LastSession returns the most recent session for symbol.
func (l *SessionLog) LastSession(ctx context.Context, symbol string) (*storage.SessionRecord, error) {
	var (
		rec       storage.SessionRecord
		reason    string
		startedAt time.Time
	)
	err := l.conn.QueryRow(ctx, `
		SELECT session_id, symbol, reason, started_at, first_sequence
		FROM monitor_sessions FINAL
		WHERE symbol = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, symbol).Scan(&rec.SessionID, &rec.Symbol, &reason, &startedAt, &rec.Sequence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query last session: %w", err)
	}
	rec.Reason = storage.SessionReason(reason)
	rec.StartedAt = startedAt.UTC()
	return &rec, nil
}
