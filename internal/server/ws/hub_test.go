package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/cache/local"
)

// countingBus reports how many subscriptions the hub has opened.
type countingBus struct {
	*local.Bus
	subscribed atomic.Int32
}

func (b *countingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch, err := b.Bus.Subscribe(ctx, channel)
	b.subscribed.Add(1)
	return ch, err
}

func TestHubRelaysBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &countingBus{Bus: local.NewBus()}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:   "standalone",
		Status: func() any { return map[string]int{"orders": 3} },
	})
	go hub.Run(ctx)
	require.Eventually(t, func() bool { return bus.subscribed.Load() == int32(len(DefaultChannels)) },
		time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var welcome struct {
		Channel string `json:"channel"`
		Data    struct {
			Mode   string         `json:"mode"`
			Engine map[string]int `json:"engine"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "status", welcome.Channel)
	assert.Equal(t, "standalone", welcome.Data.Mode)
	assert.Equal(t, 3, welcome.Data.Engine["orders"])

	require.NoError(t, bus.Publish(ctx, "events", []byte(`{"seq":1,"type":"order_created"}`)))

	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"channel":"events","data":{"seq":1,"type":"order_created"}}`, string(data))
}

func TestWrapQuotesNonJSON(t *testing.T) {
	out, err := wrap("prices", []byte("refreshed 3"))
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, `"refreshed 3"`, string(env.Data))
}

func TestIsSubscribedPrefix(t *testing.T) {
	c := &client{subs: map[string]bool{"price*": true}}
	assert.True(t, c.isSubscribed("prices"))
	assert.False(t, c.isSubscribed("events"))
}

func TestHubReplaysStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := local.NewBus()
	for _, p := range []string{`{"seq":1}`, `{"seq":2}`, `{"seq":3}`} {
		require.NoError(t, bus.StreamAppend(ctx, ReplayStream, []byte(p)))
	}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "standalone"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var welcome envelope
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "status", welcome.Channel)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "replay", "after": "1", "limit": 10}))

	for _, want := range []struct{ id, data string }{{"2", `{"seq":2}`}, {"3", `{"seq":3}`}} {
		var env envelope
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, ReplayStream, env.Channel)
		assert.Equal(t, want.id, env.ID)
		assert.JSONEq(t, want.data, string(env.Data))
	}
}
