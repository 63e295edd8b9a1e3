package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the whale size tier.
type Category string

// Whale categories, smallest first.
const (
	CategoryStandard Category = "standard"
	CategoryLarge    Category = "large"
	CategoryHuge     Category = "huge"
	CategoryMega     Category = "mega"
)

// Rank orders categories; unknown categories rank below standard.
func (c Category) Rank() int {
	switch c {
	case CategoryStandard:
		return 1
	case CategoryLarge:
		return 2
	case CategoryHuge:
		return 3
	case CategoryMega:
		return 4
	}
	return 0
}

// WhaleClassification annotates a diff or trade event. It is never persisted
// apart from its parent event.
type WhaleClassification struct {
	USDValue        decimal.Decimal
	Category        Category
	PassesThreshold bool
}

// EventSource says which component produced a whale event.
type EventSource string

// Event sources.
const (
	SourceDiff  EventSource = "diff"
	SourceTrade EventSource = "trade"
)

// WhaleEvent is a classified diff or trade event ready for persistence.
// Kind holds a DiffKind for diff events and a TradeSide for trades;
// Side holds the book side for diffs and the aggressor side for trades.
type WhaleEvent struct {
	Source             EventSource
	Symbol             string
	Kind               string
	Side               string
	Price              decimal.Decimal
	Volume             decimal.Decimal
	TotalVolume        decimal.Decimal
	Timestamp          time.Time
	DistanceFromMidPct decimal.Decimal
	Classification     WhaleClassification
}
