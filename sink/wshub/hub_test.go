package wshub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	hub := New()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, srv, cancel
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, want int) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == want }, 2*time.Second, 5*time.Millisecond)

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestBroadcastTicksAndTriggers(t *testing.T) {
	hub, srv, _ := startHub(t)
	a := dial(t, hub, srv, 1)
	b := dial(t, hub, srv, 2)

	require.NoError(t, hub.Publish(context.Background(), pipeline.Output{Tick: 1, Metric: 2.5, StateName: "accumulating"}))
	require.NoError(t, hub.Publish(context.Background(), pipeline.Output{Tick: 2, Metric: 3.5, Triggered: true}))

	for _, conn := range []*websocket.Conn{a, b} {
		first := readMessage(t, conn)
		assert.Equal(t, TypeTick, first.Type)
		assert.EqualValues(t, 1, first.Payload.Tick)
		assert.InDelta(t, 2.5, first.Payload.Metric, 0)
		assert.Equal(t, "accumulating", first.Payload.StateName)

		second := readMessage(t, conn)
		assert.Equal(t, TypeTrigger, second.Type)
		assert.True(t, second.Payload.Triggered)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv, _ := startHub(t)
	conn := dial(t, hub, srv, 1)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestPublishAfterStop(t *testing.T) {
	hub, srv, cancel := startHub(t)
	conn := dial(t, hub, srv, 1)

	cancel()
	require.Eventually(t, func() bool {
		return hub.Publish(context.Background(), pipeline.Output{}) == ErrStopped
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "stopping the hub closes client connections")
}

func TestPublishDoesNotBlockWithoutRunner(t *testing.T) {
	hub := New(WithBufferSize(2))

	for range 5 {
		require.NoError(t, hub.Publish(context.Background(), pipeline.Output{}))
	}
	assert.EqualValues(t, 3, hub.Dropped())
}
