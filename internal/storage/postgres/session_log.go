package postgres

import (
	"context"
	"fmt"

	"depth-whale-monitor/internal/storage"
)

// SessionLog implements storage.SessionLog using PostgreSQL.
type SessionLog struct {
	pool *Pool
}

// NewSessionLog creates a new SessionLog.
func NewSessionLog(pool *Pool) *SessionLog {
	return &SessionLog{pool: pool}
}

var _ storage.SessionLog = (*SessionLog)(nil)

// RecordSession appends a session start. Re-recording a session updates its
// first sequence.
func (l *SessionLog) RecordSession(ctx context.Context, rec *storage.SessionRecord) error {
	if rec == nil || rec.Symbol == "" {
		return storage.ErrInvalidInput
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO monitor_sessions (session_id, symbol, reason, started_at, first_sequence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET first_sequence = EXCLUDED.first_sequence
	`, rec.SessionID, rec.Symbol, string(rec.Reason), rec.StartedAt, rec.Sequence)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// LastSession returns the most recent session for symbol.
func (l *SessionLog) LastSession(ctx context.Context, symbol string) (*storage.SessionRecord, error) {
	var (
		rec    storage.SessionRecord
		reason string
	)
	err := l.pool.QueryRow(ctx, `
		SELECT session_id, symbol, reason, started_at, first_sequence
		FROM monitor_sessions
		WHERE symbol = $1
		ORDER BY id DESC
		LIMIT 1
	`, symbol).Scan(&rec.SessionID, &rec.Symbol, &reason, &rec.StartedAt, &rec.Sequence)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query last session: %w", err)
	}
	rec.Reason = storage.SessionReason(reason)
	return &rec, nil
}
