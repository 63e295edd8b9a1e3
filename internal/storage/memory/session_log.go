package memory

import (
	"context"
	"sync"

	"depth-whale-monitor/internal/storage"
)

// SessionLog is an in-memory implementation of storage.SessionLog.
type SessionLog struct {
	mu      sync.RWMutex
	records []*storage.SessionRecord
}

// NewSessionLog creates a new in-memory session log.
func NewSessionLog() *SessionLog {
	return &SessionLog{}
}

var _ storage.SessionLog = (*SessionLog)(nil)

// RecordSession appends a session start.
func (l *SessionLog) RecordSession(_ context.Context, rec *storage.SessionRecord) error {
	if rec == nil || rec.Symbol == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recCopy := *rec
	l.records = append(l.records, &recCopy)
	return nil
}

// LastSession returns the most recent session for symbol.
func (l *SessionLog) LastSession(_ context.Context, symbol string) (*storage.SessionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Symbol == symbol {
			recCopy := *l.records[i]
			return &recCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Len returns the number of recorded sessions.
func (l *SessionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns copies of all recorded sessions in insertion order.
func (l *SessionLog) Records() []storage.SessionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]storage.SessionRecord, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, *r)
	}
	return out
}
