package notify

import (
	"fmt"
	"strings"

	"depth-whale-monitor/internal/domain"
)

// eventMessage is the JSON shape published for an event.
type eventMessage struct {
	Source             string `json:"source"`
	Symbol             string `json:"symbol"`
	Kind               string `json:"kind"`
	Side               string `json:"side"`
	Price              string `json:"price"`
	Volume             string `json:"volume"`
	TotalVolume        string `json:"total_volume"`
	USDValue           string `json:"usd_value"`
	Category           string `json:"category"`
	DistanceFromMidPct string `json:"distance_from_mid_pct"`
	TimestampMs        int64  `json:"timestamp_ms"`
}

func newEventMessage(ev domain.WhaleEvent) eventMessage {
	return eventMessage{
		Source:             string(ev.Source),
		Symbol:             ev.Symbol,
		Kind:               ev.Kind,
		Side:               ev.Side,
		Price:              ev.Price.String(),
		Volume:             ev.Volume.String(),
		TotalVolume:        ev.TotalVolume.String(),
		USDValue:           ev.Classification.USDValue.String(),
		Category:           string(ev.Classification.Category),
		DistanceFromMidPct: ev.DistanceFromMidPct.StringFixed(3),
		TimestampMs:        ev.Timestamp.UnixMilli(),
	}
}

// formatText renders ev as a short human-readable alert.
func formatText(ev domain.WhaleEvent) (title, body string) {
	title = fmt.Sprintf("%s %s whale: %s", ev.Symbol, strings.ToUpper(string(ev.Classification.Category)), ev.Kind)

	var b strings.Builder
	fmt.Fprintf(&b, "side: %s\n", ev.Side)
	fmt.Fprintf(&b, "price: %s\n", ev.Price)
	fmt.Fprintf(&b, "volume: %s", ev.Volume)
	if ev.Source == domain.SourceDiff && !ev.TotalVolume.Equal(ev.Volume) {
		fmt.Fprintf(&b, " (level total %s)", ev.TotalVolume)
	}
	fmt.Fprintf(&b, "\nusd: %s\n", ev.Classification.USDValue.StringFixed(0))
	fmt.Fprintf(&b, "from mid: %s%%\n", ev.DistanceFromMidPct.StringFixed(3))
	fmt.Fprintf(&b, "at: %s", ev.Timestamp.UTC().Format("2006-01-02 15:04:05.000"))
	return title, b.String()
}
