package domain

import "github.com/google/uuid"

// PointKind identifies the persisted series a point belongs to.
type PointKind string

// Point kinds.
const (
	PointWhaleEvent PointKind = "whale_event"
	PointStats      PointKind = "aggregate_stats"
	PointDepthLevel PointKind = "depth_level"
)

// DepthLevelPoint is one visible level of a raw depth snapshot.
type DepthLevelPoint struct {
	Symbol      string
	Sequence    int64
	Side        Side
	Rank        int // 0 is best
	Level       PriceLevel
	TimestampMs int64
}

// Point is one pending persistence write. Exactly one payload is set,
// matching Kind.
type Point struct {
	Kind      PointKind
	SessionID uuid.UUID

	Event *WhaleEvent
	Stats *AggregateStats
	Depth *DepthLevelPoint
}

// NewEventPoint wraps a whale event.
func NewEventPoint(session uuid.UUID, e WhaleEvent) Point {
	return Point{Kind: PointWhaleEvent, SessionID: session, Event: &e}
}

// NewStatsPoint wraps aggregate stats.
func NewStatsPoint(session uuid.UUID, s AggregateStats) Point {
	return Point{Kind: PointStats, SessionID: session, Stats: &s}
}

// NewDepthPoint wraps one depth level.
func NewDepthPoint(session uuid.UUID, d DepthLevelPoint) Point {
	return Point{Kind: PointDepthLevel, SessionID: session, Depth: &d}
}

// Symbol returns the symbol of whichever payload is set.
func (p Point) Symbol() string {
	if !p.Valid() {
		return ""
	}
	switch p.Kind {
	case PointWhaleEvent:
		return p.Event.Symbol
	case PointStats:
		return p.Stats.Symbol
	case PointDepthLevel:
		return p.Depth.Symbol
	}
	return ""
}

// TimestampMs returns the point time in unix milliseconds.
func (p Point) TimestampMs() int64 {
	if !p.Valid() {
		return 0
	}
	switch p.Kind {
	case PointWhaleEvent:
		return p.Event.Timestamp.UnixMilli()
	case PointStats:
		return p.Stats.Timestamp.UnixMilli()
	case PointDepthLevel:
		return p.Depth.TimestampMs
	}
	return 0
}

// Valid reports whether the payload matching Kind is present.
func (p Point) Valid() bool {
	switch p.Kind {
	case PointWhaleEvent:
		return p.Event != nil
	case PointStats:
		return p.Stats != nil
	case PointDepthLevel:
		return p.Depth != nil
	}
	return false
}
