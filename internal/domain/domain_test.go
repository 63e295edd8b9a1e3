package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryRank(t *testing.T) {
	ordered := []Category{CategoryStandard, CategoryLarge, CategoryHuge, CategoryMega}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(), "%s should outrank %s", ordered[i], ordered[i-1])
	}
	assert.Zero(t, Category("whatever").Rank())
}

func TestSideBetter(t *testing.T) {
	lo, hi := decimal.RequireFromString("100"), decimal.RequireFromString("101")

	assert.True(t, SideBid.Better(hi, lo))
	assert.False(t, SideBid.Better(lo, hi))
	assert.True(t, SideAsk.Better(lo, hi))
	assert.False(t, SideAsk.Better(lo, lo))
}

func TestPriceKey_TrailingZeros(t *testing.T) {
	assert.Equal(t, PriceKey(decimal.RequireFromString("100")), PriceKey(decimal.RequireFromString("100.000")))
	assert.NotEqual(t, PriceKey(decimal.RequireFromString("100.1")), PriceKey(decimal.RequireFromString("100.01")))
}

func TestSnapshotBestPrices(t *testing.T) {
	snap := OrderBookSnapshot{
		Bids: []PriceLevel{{Price: decimal.NewFromInt(99)}, {Price: decimal.NewFromInt(98)}},
	}

	bid, ok := snap.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.NewFromInt(99)))

	_, ok = snap.BestAsk()
	assert.False(t, ok)
	assert.Empty(t, snap.Levels(SideAsk))
}

func TestDiffKind(t *testing.T) {
	for _, k := range AllDiffKinds {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, DiffKind("moved").IsValid())

	assert.True(t, DiffVolumeIncrease.UsesDelta())
	assert.True(t, DiffVolumeDecrease.UsesDelta())
	assert.False(t, DiffNewLevel.UsesDelta())
}

func TestPointAccessors(t *testing.T) {
	session := uuid.New()
	ts := time.UnixMilli(1_700_000_000_123)

	ev := NewEventPoint(session, WhaleEvent{Symbol: "BTC", Timestamp: ts})
	assert.True(t, ev.Valid())
	assert.Equal(t, "BTC", ev.Symbol())
	assert.Equal(t, ts.UnixMilli(), ev.TimestampMs())
	assert.Equal(t, session, ev.SessionID)

	st := NewStatsPoint(session, AggregateStats{Symbol: "ETH", Timestamp: ts})
	assert.Equal(t, "ETH", st.Symbol())
	assert.Equal(t, ts.UnixMilli(), st.TimestampMs())

	d := NewDepthPoint(session, DepthLevelPoint{Symbol: "SOL", TimestampMs: 42})
	assert.Equal(t, "SOL", d.Symbol())
	assert.Equal(t, int64(42), d.TimestampMs())

	broken := Point{Kind: PointStats}
	assert.False(t, broken.Valid())
	assert.Empty(t, broken.Symbol())
	assert.Zero(t, broken.TimestampMs())
}
