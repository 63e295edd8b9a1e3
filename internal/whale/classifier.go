// Package whale filters and tags diff and trade events by notional size.
package whale

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/stats"
)

// Thresholds holds the USD cutoffs. A value equal to a cutoff belongs to the
// higher tier.
type Thresholds struct {
	// MinUSD is the global minimum notional; smaller events are discarded.
	MinUSD decimal.Decimal
	// SymbolMinUSD overrides MinUSD per symbol (keys are upper-cased).
	SymbolMinUSD map[string]decimal.Decimal

	Large decimal.Decimal
	Huge  decimal.Decimal
	Mega  decimal.Decimal
}

// DefaultThresholds returns standard < 100k <= large < 500k <= huge < 1M <= mega,
// with a 50k minimum.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinUSD: decimal.NewFromInt(50_000),
		Large:  decimal.NewFromInt(100_000),
		Huge:   decimal.NewFromInt(500_000),
		Mega:   decimal.NewFromInt(1_000_000),
	}
}

// Validate checks that the cutoffs are strictly increasing and non-negative.
func (t Thresholds) Validate() error {
	if t.MinUSD.IsNegative() {
		return fmt.Errorf("min usd must not be negative")
	}
	if !t.Large.IsPositive() || !t.Huge.GreaterThan(t.Large) || !t.Mega.GreaterThan(t.Huge) {
		return fmt.Errorf("category cutoffs must satisfy 0 < large < huge < mega")
	}
	for sym, v := range t.SymbolMinUSD {
		if v.IsNegative() {
			return fmt.Errorf("min usd for %s must not be negative", sym)
		}
	}
	return nil
}

// Classifier tags events with a whale category.
type Classifier struct {
	th Thresholds
}

// NewClassifier creates a classifier.
func NewClassifier(th Thresholds) *Classifier {
	perSymbol := make(map[string]decimal.Decimal, len(th.SymbolMinUSD))
	for sym, v := range th.SymbolMinUSD {
		perSymbol[strings.ToUpper(sym)] = v
	}
	th.SymbolMinUSD = perSymbol
	return &Classifier{th: th}
}

// MinUSD returns the minimum notional for symbol.
func (c *Classifier) MinUSD(symbol string) decimal.Decimal {
	if v, ok := c.th.SymbolMinUSD[strings.ToUpper(symbol)]; ok {
		return v
	}
	return c.th.MinUSD
}

// Category maps a USD value onto a tier.
func (c *Classifier) Category(usd decimal.Decimal) domain.Category {
	switch {
	case usd.GreaterThanOrEqual(c.th.Mega):
		return domain.CategoryMega
	case usd.GreaterThanOrEqual(c.th.Huge):
		return domain.CategoryHuge
	case usd.GreaterThanOrEqual(c.th.Large):
		return domain.CategoryLarge
	default:
		return domain.CategoryStandard
	}
}

// Classify computes price*volume and its tier.
func (c *Classifier) Classify(symbol string, price, volume decimal.Decimal) domain.WhaleClassification {
	usd := price.Mul(volume)
	return domain.WhaleClassification{
		USDValue:        usd,
		Category:        c.Category(usd),
		PassesThreshold: usd.GreaterThanOrEqual(c.MinUSD(symbol)),
	}
}

// ClassifyDiff classifies a diff event against the current mid. It returns
// false when the event is below the symbol's minimum.
func (c *Classifier) ClassifyDiff(symbol string, ev domain.DiffEvent, mid decimal.Decimal) (domain.WhaleEvent, bool) {
	cls := c.Classify(symbol, ev.Price, ev.Volume)
	if !cls.PassesThreshold {
		return domain.WhaleEvent{}, false
	}

	ev.DistanceFromMidPct = stats.DistanceFromMidPct(ev.Price, mid)
	return domain.WhaleEvent{
		Source:             domain.SourceDiff,
		Symbol:             symbol,
		Kind:               string(ev.Kind),
		Side:               string(ev.Side),
		Price:              ev.Price,
		Volume:             ev.Volume,
		TotalVolume:        ev.TotalVolume,
		Timestamp:          ev.Timestamp,
		DistanceFromMidPct: ev.DistanceFromMidPct,
		Classification:     cls,
	}, true
}

// ClassifyTrade classifies an execution. Trades are definitive: only the size
// filter applies.
func (c *Classifier) ClassifyTrade(tr domain.TradeEvent, mid decimal.Decimal) (domain.WhaleEvent, bool) {
	cls := c.Classify(tr.Symbol, tr.Price, tr.Volume)
	if !cls.PassesThreshold {
		return domain.WhaleEvent{}, false
	}

	return domain.WhaleEvent{
		Source:             domain.SourceTrade,
		Symbol:             tr.Symbol,
		Kind:               string(tr.Side),
		Side:               string(tr.Side),
		Price:              tr.Price,
		Volume:             tr.Volume,
		TotalVolume:        tr.Volume,
		Timestamp:          tr.Timestamp,
		DistanceFromMidPct: stats.DistanceFromMidPct(tr.Price, mid),
		Classification:     cls,
	}, true
}
