package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-whale-monitor/internal/domain"
)

func TestDiff_IdenticalSnapshotsProduceNoEvents(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	prev := snap(1, lv("100", "50", "99.5", "30"), lv("100.5", "10", "101", "20"))
	next := snap(2, lv("100", "50", "99.5", "30"), lv("100.5", "10", "101", "20"))

	for _, emitDecreases := range []bool{true, false} {
		events := Diff(&prev, &next, history, DiffOptions{Depth: 2, EmitDecreases: emitDecreases})
		assert.Empty(t, events)
	}
}

func TestDiff_EquivalentPriceFormatsMatch(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	prev := snap(1, lv("100.0", "50"), nil)
	next := snap(2, lv("100.00", "50.0"), nil)

	events := Diff(&prev, &next, history, DiffOptions{Depth: 10, EmitDecreases: true})
	assert.Empty(t, events)
}

func TestDiff_ExampleScenario(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	for _, p := range []string{"100.0", "99.5", "99.0"} {
		history.Touch(domain.SideBid, dec(p), baseTime)
	}

	prev := snap(1, lv("100.0", "50", "99.5", "30"), nil)
	next := snap(2, lv("100.0", "80", "99.0", "10"), nil)

	events := Diff(&prev, &next, history, DiffOptions{Depth: 2, EmitDecreases: true})

	assert.Equal(t, []eventSummary{
		{Kind: domain.DiffVolumeIncrease, Side: domain.SideBid, Price: "100", Volume: "30", Total: "80"},
		{Kind: domain.DiffLeftTop, Side: domain.SideBid, Price: "99.5", Volume: "30", Total: "30"},
		{Kind: domain.DiffEnteredTop, Side: domain.SideBid, Price: "99", Volume: "10", Total: "10"},
	}, summarize(events))
}

func TestDiff_NewLevelVersusEnteredTop(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	history.Touch(domain.SideAsk, dec("101"), baseTime)

	prev := snap(1, nil, lv("100.5", "5"))
	next := snap(2, nil, lv("100.5", "5", "100.7", "3", "101", "4"))

	events := Diff(&prev, &next, history, DiffOptions{Depth: 5, EmitDecreases: true})
	require.Len(t, events, 2)

	assert.Equal(t, domain.DiffNewLevel, events[0].Kind)
	assert.True(t, events[0].Price.Equal(dec("100.7")))
	assert.Equal(t, domain.DiffEnteredTop, events[1].Kind)
	assert.True(t, events[1].Price.Equal(dec("101")))
}

func TestDiff_HistoryOnOtherSideDoesNotCount(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	history.Touch(domain.SideAsk, dec("100"), baseTime)

	prev := snap(1, nil, nil)
	next := snap(2, lv("100", "1"), nil)

	events := Diff(&prev, &next, history, DiffOptions{Depth: 5})
	require.Len(t, events, 1)
	assert.Equal(t, domain.DiffNewLevel, events[0].Kind)
}

func TestDiff_DecreasePolicy(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	prev := snap(1, lv("100", "50"), nil)
	next := snap(2, lv("100", "20"), nil)

	events := Diff(&prev, &next, history, DiffOptions{Depth: 5, EmitDecreases: true})
	assert.Equal(t, []eventSummary{
		{Kind: domain.DiffVolumeDecrease, Side: domain.SideBid, Price: "100", Volume: "30", Total: "20"},
	}, summarize(events))

	events = Diff(&prev, &next, history, DiffOptions{Depth: 5, EmitDecreases: false})
	assert.Empty(t, events)
}

func TestDiff_RemovedWhenWindowHasRoom(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	history.Touch(domain.SideAsk, dec("101"), baseTime)
	history.Touch(domain.SideAsk, dec("102"), baseTime)

	prev := snap(1, nil, lv("101", "7", "102", "3"))
	next := snap(2, nil, lv("102", "3"))

	events := Diff(&prev, &next, history, DiffOptions{Depth: 5, EmitDecreases: true})
	assert.Equal(t, []eventSummary{
		{Kind: domain.DiffRemoved, Side: domain.SideAsk, Price: "101", Volume: "7", Total: "0"},
	}, summarize(events))
}

func TestDiff_OrderingBidsThenAsksBestFirst(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	prev := snap(1, nil, nil)
	next := snap(2, lv("99", "1", "98", "1", "97", "1"), lv("101", "1", "102", "1"))

	events := Diff(&prev, &next, history, DiffOptions{Depth: 5})

	var prices []string
	for _, e := range events {
		prices = append(prices, string(e.Side)+":"+e.Price.String())
	}
	assert.Equal(t, []string{"bid:99", "bid:98", "bid:97", "ask:101", "ask:102"}, prices)
}

func TestDiff_Deterministic(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	history.Touch(domain.SideBid, dec("98"), baseTime)
	prev := snap(1, lv("100", "5", "99", "4", "97", "1"), lv("101", "2", "103", "9"))
	next := snap(2, lv("100", "6", "98", "4", "96", "1"), lv("101", "1", "102", "9"))

	first := Diff(&prev, &next, history, DiffOptions{Depth: 3, EmitDecreases: true})
	for i := 0; i < 20; i++ {
		again := Diff(&prev, &next, history, DiffOptions{Depth: 3, EmitDecreases: true})
		require.Equal(t, summarize(first), summarize(again))
	}
}

func TestDiff_TimestampFromMessage(t *testing.T) {
	history := NewHistoricalPriceSet(DefaultHistoryConfig())
	prev := snap(1, nil, nil)
	next := snap(7, lv("100", "1"), nil)

	events := Diff(&prev, &next, history, DiffOptions{Depth: 5})
	require.Len(t, events, 1)
	assert.Equal(t, next.ReceivedAt, events[0].Timestamp)
}
