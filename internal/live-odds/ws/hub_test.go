package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	soccer := dial(t, srv)
	all := dial(t, srv)
	require.NoError(t, soccer.WriteJSON(ClientMsg{Type: "subscribe", Sport: "soccer"}))
	require.NoError(t, all.WriteJSON(ClientMsg{Type: "subscribe", Sport: AllSports}))
	assert.Equal(t, "subscribed", readJSON(t, soccer)["type"])
	assert.Equal(t, "subscribed", readJSON(t, all)["type"])

	sent := hub.Broadcast(events.ViewChanged{Sport: "soccer", Version: 7, Events: 12})
	assert.Equal(t, 2, sent)

	got := readJSON(t, soccer)
	assert.Equal(t, "view_changed", got["type"])
	assert.Equal(t, 7.0, got["version"])
	assert.Equal(t, "view_changed", readJSON(t, all)["type"])

	// tennis só chega para "*"
	assert.Equal(t, 1, hub.Broadcast(events.ViewChanged{Sport: "tennis"}))
}

func TestHub_PingAndUnsubscribe(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	assert.Equal(t, "pong", readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Sport: "soccer"}))
	readJSON(t, conn)
	assert.Equal(t, 1, hub.Subscribers("soccer"))

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", Sport: "soccer"}))
	assert.Eventually(t, func() bool { return hub.Subscribers("soccer") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_DisconnectCleansUp(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Sport: "soccer"}))
	readJSON(t, conn)
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Subscribers("soccer") == 0 }, time.Second, 10*time.Millisecond)
}

func TestRelay_HandleForwardsToHub(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Sport: "soccer"}))
	readJSON(t, conn)

	r := &Relay{Hub: hub, Log: zap.NewNop()}
	r.handle(`not json`)
	r.handle(`{"sport":"soccer","version":3,"events":1,"viewers":2}`)

	got := readJSON(t, conn)
	assert.Equal(t, 3.0, got["version"])
	assert.Equal(t, 2.0, got["viewers"])
}

type memPublisher struct {
	mu   sync.Mutex
	msgs []events.ViewChanged
}

func (m *memPublisher) Publish(_ context.Context, _ string, payload []byte) error {
	var v events.ViewChanged
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	m.mu.Lock()
	m.msgs = append(m.msgs, v)
	m.mu.Unlock()
	return nil
}

func (m *memPublisher) versions() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.msgs))
	for i, v := range m.msgs {
		out[i] = v.Version
	}
	return out
}

func TestNotifier_CoalescesUnderRateLimit(t *testing.T) {
	pub := &memPublisher{}
	coalesced := 0
	n := &Notifier{
		Pub:         pub,
		Channel:     "live_odds_view_changed",
		Limiter:     rate.NewLimiter(rate.Every(time.Hour), 1),
		Log:         zap.NewNop(),
		OnCoalesced: func() { coalesced++ },
	}

	// sem Run: os avisos se acumulam e só o último sobrevive
	for v := uint64(1); v <= 5; v++ {
		n.Notify(events.ViewChanged{Sport: "soccer", Version: v})
	}
	assert.Equal(t, 4, coalesced)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.versions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{5}, pub.versions())
}

func TestNotifier_PublishesEachWhenUnderLimit(t *testing.T) {
	pub := &memPublisher{}
	n := &Notifier{Pub: pub, Limiter: rate.NewLimiter(rate.Inf, 1), Log: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.Notify(events.ViewChanged{Version: 1})
	require.Eventually(t, func() bool { return len(pub.versions()) == 1 }, time.Second, 5*time.Millisecond)
	n.Notify(events.ViewChanged{Version: 2})
	require.Eventually(t, func() bool { return len(pub.versions()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, pub.versions())
}

func TestLocalPublisher_BroadcastsToHub(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Sport: "soccer"}))
	require.Equal(t, "subscribed", readJSON(t, conn)["type"])

	pub := LocalPublisher{Hub: hub}
	payload, _ := json.Marshal(events.ViewChanged{Sport: "soccer", Version: 3})
	require.NoError(t, pub.Publish(context.Background(), "ignored", payload))

	got := readJSON(t, conn)
	assert.Equal(t, 3.0, got["version"])

	assert.Error(t, pub.Publish(context.Background(), "ignored", []byte("{")))
}
