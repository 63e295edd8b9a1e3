package venue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-whale-monitor/internal/domain"
)

func TestDecode_Depth(t *testing.T) {
	frame := `{"channel":"depth","data":{"symbol":"btc","version":42,"ts":1709294400123,
		"bids":[["100.5","2.5",3],[100,1]],"asks":[["101","4",1]]}}`

	msg := Decode([]byte(frame))
	require.Equal(t, KindDepth, msg.Kind, "err: %v", msg.Err)

	snap := msg.Depth
	assert.Equal(t, "BTC", snap.Symbol)
	assert.Equal(t, int64(42), snap.Sequence)
	assert.Equal(t, int64(1709294400123), snap.ReceivedAt.UnixMilli())
	require.Len(t, snap.Bids, 2)
	assert.True(t, decimal.RequireFromString("100.5").Equal(snap.Bids[0].Price))
	assert.Equal(t, 3, snap.Bids[0].OrderCount)
	assert.True(t, decimal.NewFromInt(100).Equal(snap.Bids[1].Price))
	assert.Equal(t, 0, snap.Bids[1].OrderCount)
	require.Len(t, snap.Asks, 1)
}

func TestDecode_Trades(t *testing.T) {
	frame := `{"channel":"trades","data":[{"symbol":"BTC","px":"100","sz":"0.5","side":"BUY","ts":1709294400000},
		{"symbol":"BTC","px":99.5,"sz":1,"side":"sell","ts":1709294400001}]}`

	msg := Decode([]byte(frame))
	require.Equal(t, KindTrades, msg.Kind, "err: %v", msg.Err)
	require.Len(t, msg.Trades, 2)
	assert.Equal(t, domain.TradeBuy, msg.Trades[0].Side)
	assert.True(t, decimal.RequireFromString("0.5").Equal(msg.Trades[0].Volume))
	assert.Equal(t, domain.TradeSell, msg.Trades[1].Side)
	assert.True(t, decimal.RequireFromString("99.5").Equal(msg.Trades[1].Price))
}

func TestDecode_Control(t *testing.T) {
	ack := Decode([]byte(`{"op":"subscribed","channel":"depth"}`))
	assert.Equal(t, KindAck, ack.Kind)
	assert.Equal(t, ChannelDepth, ack.Channel)

	venueErr := Decode([]byte(`{"op":"error","channel":"trades","msg":"unknown symbol"}`))
	assert.Equal(t, KindError, venueErr.Kind)
	assert.Contains(t, venueErr.Err.Error(), "unknown symbol")

	assert.Equal(t, KindIgnored, Decode([]byte(`{"channel":"ticker","data":{}}`)).Kind)
	assert.Equal(t, KindIgnored, Decode([]byte(`{"op":"pong"}`)).Kind)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{{`},
		{"depth without data", `{"channel":"depth"}`},
		{"depth without version", `{"channel":"depth","data":{"symbol":"BTC","ts":1,"bids":[],"asks":[]}}`},
		{"bad price", `{"channel":"depth","data":{"symbol":"BTC","version":1,"ts":1,"bids":[["x","1"]],"asks":[]}}`},
		{"short level", `{"channel":"depth","data":{"symbol":"BTC","version":1,"ts":1,"bids":[["1"]],"asks":[]}}`},
		{"trades not array", `{"channel":"trades","data":{"px":"1"}}`},
		{"depth without ts", `{"channel":"depth","data":{"symbol":"BTC","version":1,"bids":[],"asks":[]}}`},
		{"depth with zero ts", `{"channel":"depth","data":{"symbol":"BTC","version":1,"ts":0,"bids":[],"asks":[]}}`},
		{"trade without ts", `{"channel":"trades","data":[{"symbol":"BTC","px":"1","sz":"1","side":"buy"}]}`},
		{"trade with negative ts", `{"channel":"trades","data":[{"symbol":"BTC","px":"1","sz":"1","side":"buy","ts":-5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Decode([]byte(tt.frame))
			assert.Equal(t, KindMalformed, msg.Kind)
			assert.ErrorIs(t, msg.Err, ErrMalformedMessage)
		})
	}
}

func TestEncodeDepth_RoundTrip(t *testing.T) {
	snap := domain.OrderBookSnapshot{
		Symbol:     "ETH",
		Sequence:   9,
		ReceivedAt: time.UnixMilli(1709294400500).UTC(),
		Bids:       []domain.PriceLevel{{Price: decimal.RequireFromString("3000.25"), Volume: decimal.NewFromInt(2), OrderCount: 4}},
		Asks:       []domain.PriceLevel{{Price: decimal.RequireFromString("3000.5"), Volume: decimal.NewFromInt(1), OrderCount: 1}},
	}

	frame, err := EncodeDepth(snap)
	require.NoError(t, err)

	msg := Decode(frame)
	require.Equal(t, KindDepth, msg.Kind)
	assert.Equal(t, snap.Sequence, msg.Depth.Sequence)
	assert.Equal(t, snap.ReceivedAt, msg.Depth.ReceivedAt)
	assert.True(t, snap.Bids[0].Price.Equal(msg.Depth.Bids[0].Price))
	assert.Equal(t, 4, msg.Depth.Bids[0].OrderCount)
}
