package storage

import (
	"context"

	"depth-whale-monitor/internal/domain"
)

// PointSink is the persistence layer as seen by the batch writer: an opaque
// sink that accepts a batch of points and reports success or failure for the
// whole batch.
type PointSink interface {
	// WriteBatch persists every point. Returns ErrInvalidInput if any point
	// has no payload for its kind.
	WriteBatch(ctx context.Context, points []domain.Point) error
}

// EventReader reads persisted whale events back.
type EventReader interface {
	// EventsByTimeRange returns events for symbol within [start, end] unix ms
	// (inclusive), ordered by timestamp ASC.
	EventsByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*EventRow, error)
}

// StatsReader reads persisted aggregate stats back.
type StatsReader interface {
	// StatsByTimeRange returns stats for symbol within [start, end] unix ms
	// (inclusive), ordered by timestamp ASC.
	StatsByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*StatsRow, error)
}

// DepthReader reads persisted raw depth levels back.
type DepthReader interface {
	// DepthBySequence returns the levels recorded for one snapshot, bids then
	// asks, each ordered by rank.
	DepthBySequence(ctx context.Context, symbol string, sequence int64) ([]*DepthRow, error)
}

// Store is a sink that can also read its series back.
type Store interface {
	PointSink
	EventReader
	StatsReader
	DepthReader
}

// SessionLog records connection sessions so persisted points can be tied to
// the connection and resync that produced them.
type SessionLog interface {
	// RecordSession appends a session start.
	RecordSession(ctx context.Context, rec *SessionRecord) error

	// LastSession returns the most recent session for symbol.
	// Returns ErrNotFound if none has been recorded.
	LastSession(ctx context.Context, symbol string) (*SessionRecord, error)
}
