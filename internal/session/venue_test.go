package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-whale-monitor/internal/venue"
	"depth-whale-monitor/internal/venue/venuetest"
)

func sendDepth(t *testing.T, server *venuetest.Server, seq int64) {
	t.Helper()
	frame, err := venue.EncodeDepth(book(seq))
	require.NoError(t, err)
	require.NoError(t, server.Send(frame))
}

func awaitSubscriptions(t *testing.T, server *venuetest.Server, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-server.Subscribed():
		case <-time.After(waitFor):
			t.Fatalf("subscription %d not received", i+1)
		}
	}
}

func TestManager_OverWebsocket(t *testing.T) {
	server := venuetest.NewServer()
	defer server.Close()

	vcfg := venue.DefaultConfig()
	vcfg.SubscribeTimeout = time.Second
	handler := newRecordingHandler()
	m := NewManager(testConfig(), Options{
		Dialer:  VenueDialer(server.URL(), &vcfg),
		Handler: handler,
		Logger:  testLogger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runManager(ctx, m)

	awaitSubscriptions(t, server, 2)
	sendDepth(t, server, 10)
	sendDepth(t, server, 11)
	require.Eventually(t, snapshotsReach(handler, 2), waitFor, tick)

	server.Drop()
	awaitSubscriptions(t, server, 2)
	sendDepth(t, server, 1)
	require.Eventually(t, snapshotsReach(handler, 3), waitFor, tick)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{10, 11, 1}, handler.Snapshots())
	assert.Equal(t, 2, server.Connects())
	reqs := server.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "BTC", reqs[0].Symbol)
	assert.Equal(t, 5, reqs[0].Depth)
	assert.Equal(t, int64(1), m.Stats().Reconnects)
}
