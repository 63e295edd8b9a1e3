package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiffKind tags a structural change observed between two snapshots.
//
// Removed and VolumeDecrease mean "the level vanished / shrank". Aggregated
// depth cannot tell a fill from a cancellation, so neither implies a cause.
type DiffKind string

// Diff kinds.
const (
	DiffNewLevel       DiffKind = "new_level"
	DiffEnteredTop     DiffKind = "entered_top"
	DiffVolumeIncrease DiffKind = "volume_increase"
	DiffVolumeDecrease DiffKind = "volume_decrease"
	DiffRemoved        DiffKind = "removed"
	DiffLeftTop        DiffKind = "left_top"
)

// AllDiffKinds lists every diff kind.
var AllDiffKinds = []DiffKind{
	DiffNewLevel, DiffEnteredTop, DiffVolumeIncrease,
	DiffVolumeDecrease, DiffRemoved, DiffLeftTop,
}

// IsValid reports whether k is a known kind.
func (k DiffKind) IsValid() bool {
	switch k {
	case DiffNewLevel, DiffEnteredTop, DiffVolumeIncrease,
		DiffVolumeDecrease, DiffRemoved, DiffLeftTop:
		return true
	}
	return false
}

// UsesDelta reports whether Volume carries a delta rather than a level total.
func (k DiffKind) UsesDelta() bool {
	return k == DiffVolumeIncrease || k == DiffVolumeDecrease
}

// DiffEvent is one structural change on one side of the book.
// Events are values; nothing mutates them after the diff engine emits them.
type DiffEvent struct {
	Kind  DiffKind
	Side  Side
	Price decimal.Decimal
	// Volume is the delta for increase/decrease events and the level volume
	// for every other kind (the vanished volume for Removed and LeftTop).
	Volume decimal.Decimal
	// TotalVolume is the level volume after the change, zero for Removed.
	TotalVolume decimal.Decimal
	Timestamp   time.Time
	// DistanceFromMidPct is filled in by the whale classifier.
	DistanceFromMidPct decimal.Decimal
}

// TradeSide is the aggressor side of an execution.
type TradeSide string

// Trade sides.
const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// IsValid reports whether s is buy or sell.
func (s TradeSide) IsValid() bool {
	return s == TradeBuy || s == TradeSell
}

// TradeEvent is a directly observed execution. It needs no inference.
type TradeEvent struct {
	Symbol    string
	Side      TradeSide
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}
