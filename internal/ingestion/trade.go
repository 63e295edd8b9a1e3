package ingestion

import (
	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/observability"
	"depth-whale-monitor/internal/whale"
)

// TradeListener turns executed trades into whale events. Trades carry their
// aggressor side, so no inference is needed; only the USD filter applies.
type TradeListener struct {
	classifier *whale.Classifier
}

// NewTradeListener creates a listener classifying with c.
func NewTradeListener(c *whale.Classifier) *TradeListener {
	return &TradeListener{classifier: c}
}

// Handle validates tr and classifies it against mid. The bool is false when
// the trade is below the whale threshold.
func (l *TradeListener) Handle(tr domain.TradeEvent, mid decimal.Decimal) (domain.WhaleEvent, bool, error) {
	if err := ValidateTrade(&tr); err != nil {
		return domain.WhaleEvent{}, false, err
	}
	observability.RecordTrade(tr.Symbol)

	ev, ok := l.classifier.ClassifyTrade(tr, mid)
	return ev, ok, nil
}
