package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-whale-monitor/internal/domain"
)

func TestPartition(t *testing.T) {
	session := uuid.New()
	ts := time.UnixMilli(1700000000000)

	points := []domain.Point{
		domain.NewEventPoint(session, domain.WhaleEvent{Symbol: "BTC", Timestamp: ts}),
		domain.NewStatsPoint(session, domain.AggregateStats{Symbol: "BTC", Timestamp: ts}),
		domain.NewDepthPoint(session, domain.DepthLevelPoint{Symbol: "BTC", Rank: 0}),
		domain.NewDepthPoint(session, domain.DepthLevelPoint{Symbol: "BTC", Rank: 1}),
	}

	b, err := Partition(points)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Len())
	require.Len(t, b.Depth, 2)
	assert.Equal(t, 0, b.Depth[0].Rank)
	assert.Equal(t, 1, b.Depth[1].Rank)
	assert.Equal(t, session, b.Events[0].SessionID)
}

func TestPartition_InvalidPoint(t *testing.T) {
	_, err := Partition([]domain.Point{{Kind: domain.PointStats}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Partition([]domain.Point{{Kind: "bogus"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
