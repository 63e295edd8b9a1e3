package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-whale-monitor/internal/domain"
)

var testLogger = log.New(io.Discard, "", 0)

type fakeStore struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	putErr  error
	headErr error
}

func (f *fakeStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeStore) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func samplePoints() []domain.Point {
	session := uuid.MustParse("6f1c1a52-7d43-4a8e-9a3e-0c2b8f1d2e11")
	ts := time.UnixMilli(1_709_294_400_000).UTC()
	d := decimal.RequireFromString

	return []domain.Point{
		domain.NewEventPoint(session, domain.WhaleEvent{
			Source: domain.SourceTrade, Symbol: "BTC", Kind: "buy", Side: "buy",
			Price: d("60000.5"), Volume: d("3"), TotalVolume: d("3"), Timestamp: ts,
			DistanceFromMidPct: d("0.01"),
			Classification:     domain.WhaleClassification{USDValue: d("180001.5"), Category: domain.CategoryLarge, PassesThreshold: true},
		}),
		domain.NewStatsPoint(session, domain.AggregateStats{
			Symbol: "BTC", Timestamp: ts, BestBid: d("60000"), BestAsk: d("60001"),
			MidPrice: d("60000.5"), Imbalance: d("-0.25"),
			Bands: []domain.DepthBand{{Pct: d("0.1"), BidVolume: d("4"), AskVolume: d("6")}},
		}),
		domain.NewDepthPoint(session, domain.DepthLevelPoint{
			Symbol: "BTC", Sequence: 9, Side: domain.SideAsk, Rank: 0,
			Level:       domain.PriceLevel{Price: d("60001"), Volume: d("2"), OrderCount: 3},
			TimestampMs: ts.UnixMilli(),
		}),
	}
}

func TestDeadLetter_Archive(t *testing.T) {
	store := &fakeStore{}
	dl := newDeadLetter(store, "whales", "deadletter", testLogger)
	dl.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }

	points := samplePoints()
	require.NoError(t, dl.Archive(context.Background(), points, errors.New("clickhouse: connection refused")))
	require.NoError(t, dl.Archive(context.Background(), points[:1], nil))

	require.Len(t, store.puts, 2)
	assert.Equal(t, "whales", *store.puts[0].Bucket)
	assert.Equal(t, "deadletter/BTC/1700000000123-1.jsonl", *store.puts[0].Key)
	assert.Equal(t, "deadletter/BTC/1700000000123-2.jsonl", *store.puts[1].Key)
	assert.Equal(t, "clickhouse: connection refused", store.puts[0].Metadata["cause"])
	assert.Equal(t, "3", store.puts[0].Metadata["points"])
	assert.NotContains(t, store.puts[1].Metadata, "cause")

	assert.Equal(t, 3, bytes.Count(store.bodies[0], []byte("\n")))

	decoded, err := Decode(bytes.NewReader(store.bodies[0]))
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, points[0].SessionID, decoded[0].SessionID)
	assert.True(t, points[0].Event.Classification.USDValue.Equal(decoded[0].Event.Classification.USDValue))
	assert.Equal(t, domain.PointStats, decoded[1].Kind)
	assert.True(t, decoded[1].Stats.Bands[0].AskVolume.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 3, decoded[2].Depth.Level.OrderCount)
}

func TestDeadLetter_Empty(t *testing.T) {
	store := &fakeStore{}
	dl := newDeadLetter(store, "whales", "deadletter", testLogger)

	require.NoError(t, dl.Archive(context.Background(), nil, errors.New("x")))
	assert.Empty(t, store.puts)
}

func TestDeadLetter_PutFailure(t *testing.T) {
	store := &fakeStore{putErr: errors.New("access denied")}
	dl := newDeadLetter(store, "whales", "", testLogger)

	err := dl.Archive(context.Background(), samplePoints(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestDeadLetter_Health(t *testing.T) {
	store := &fakeStore{headErr: errors.New("no such bucket")}
	dl := newDeadLetter(store, "whales", "", testLogger)
	assert.ErrorContains(t, dl.Health(context.Background()), "no such bucket")
}

func TestDecode_RejectsMissingPayload(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte(`{"kind":"whale_event","symbol":"BTC"}` + "\n")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"}, testLogger)
	assert.ErrorContains(t, err, "bucket")

	_, err = New(context.Background(), ClientConfig{Bucket: "b"}, testLogger)
	assert.ErrorContains(t, err, "region")
}
