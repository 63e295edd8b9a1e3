package venue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-whale-monitor/internal/venue/venuetest"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SubscribeTimeout = time.Second
	cfg.ReadTimeout = 2 * time.Second
	return &cfg
}

func nextMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		require.True(t, ok, "messages closed: %v", c.Err())
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestClient_SubscribeAndReceive(t *testing.T) {
	server := venuetest.NewServer()
	defer server.Close()

	ctx := context.Background()
	client, err := Dial(ctx, server.URL(), testConfig())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Subscribe(ctx, ChannelDepth, "BTC", 20))
	require.NoError(t, client.Subscribe(ctx, ChannelTrades, "BTC", 0))

	reqs := server.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, 20, reqs[0].Depth)
	assert.Equal(t, "trades", reqs[1].Channel)

	require.NoError(t, server.Send([]byte(`{"channel":"depth","data":{"symbol":"BTC","version":1,"ts":1709294400000,"bids":[["100","1"]],"asks":[]}}`)))
	require.NoError(t, server.Send([]byte(`{"channel":"ticker","data":{}}`)))
	require.NoError(t, server.Send([]byte(`garbage`)))
	require.NoError(t, server.Send([]byte(`{"channel":"trades","data":[{"symbol":"BTC","px":"1","sz":"1","side":"buy","ts":1}]}`)))

	assert.Equal(t, KindDepth, nextMessage(t, client).Kind)
	assert.Equal(t, KindMalformed, nextMessage(t, client).Kind, "unknown channel skipped")
	assert.Equal(t, KindTrades, nextMessage(t, client).Kind)
}

func TestClient_SubscribeRejected(t *testing.T) {
	server := venuetest.NewServer()
	defer server.Close()
	server.Reject(ChannelDepth, "unknown symbol")

	ctx := context.Background()
	client, err := Dial(ctx, server.URL(), testConfig())
	require.NoError(t, err)
	defer client.Close()

	err = client.Subscribe(ctx, ChannelDepth, "NOPE", 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown symbol")
}

func TestClient_DroppedConnectionEndsMessages(t *testing.T) {
	server := venuetest.NewServer()
	defer server.Close()

	ctx := context.Background()
	client, err := Dial(ctx, server.URL(), testConfig())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Subscribe(ctx, ChannelDepth, "BTC", 5))

	server.Drop()

	select {
	case _, ok := <-client.Messages():
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("messages channel not closed")
	}
	assert.Error(t, client.Err())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	server := venuetest.NewServer()
	defer server.Close()

	client, err := Dial(context.Background(), server.URL(), testConfig())
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Err(), "clean close is not a read error")
	assert.ErrorIs(t, client.Subscribe(context.Background(), ChannelDepth, "BTC", 1), ErrClosed)
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", testConfig())
	assert.Error(t, err)
}
