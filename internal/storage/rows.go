// Package storage defines the persistence contracts shared by the sink
// implementations.
package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"depth-whale-monitor/internal/domain"
)

// EventRow is a persisted whale event.
type EventRow struct {
	SessionID uuid.UUID
	domain.WhaleEvent
}

// StatsRow is a persisted aggregate stats point.
type StatsRow struct {
	SessionID uuid.UUID
	domain.AggregateStats
}

// DepthRow is a persisted raw depth level.
type DepthRow struct {
	SessionID uuid.UUID
	domain.DepthLevelPoint
}

// SessionReason says why a session started.
type SessionReason string

// Session reasons.
const (
	ReasonConnect   SessionReason = "connect"
	ReasonReconnect SessionReason = "reconnect"
	ReasonResync    SessionReason = "resync"
)

// SessionRecord describes one connection session.
type SessionRecord struct {
	SessionID uuid.UUID
	Symbol    string
	Reason    SessionReason
	StartedAt time.Time
	// Sequence is the first accepted sequence_version, zero until known.
	Sequence int64
}

// Batch is a point batch split by series.
type Batch struct {
	Events []*EventRow
	Stats  []*StatsRow
	Depth  []*DepthRow
}

// Len returns the number of rows across all series.
func (b *Batch) Len() int {
	return len(b.Events) + len(b.Stats) + len(b.Depth)
}

// Partition splits points by kind, preserving order within each series.
// Returns ErrInvalidInput for a point without a payload for its kind.
func Partition(points []domain.Point) (*Batch, error) {
	b := &Batch{}
	for i, p := range points {
		if !p.Valid() {
			return nil, fmt.Errorf("point %d (%s): %w", i, p.Kind, ErrInvalidInput)
		}
		switch p.Kind {
		case domain.PointWhaleEvent:
			b.Events = append(b.Events, &EventRow{SessionID: p.SessionID, WhaleEvent: *p.Event})
		case domain.PointStats:
			b.Stats = append(b.Stats, &StatsRow{SessionID: p.SessionID, AggregateStats: *p.Stats})
		case domain.PointDepthLevel:
			b.Depth = append(b.Depth, &DepthRow{SessionID: p.SessionID, DepthLevelPoint: *p.Depth})
		}
	}
	return b, nil
}
