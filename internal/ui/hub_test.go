package ui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestHub_ReplaysStickyEventsToLateJoiners(t *testing.T) {
	hub, srv := startHub(t)

	hub.Replace(RegionContainer, "<p>old</p>")
	hub.Replace(RegionContainer, "<p>new</p>")
	hub.Publish(EventStatus, map[string]int{"pending": 2})
	hub.Toast("not replayed")

	conn := dial(t, srv)

	first := readEvent(t, conn)
	assert.Equal(t, EventStatus, first.Type)

	second := readEvent(t, conn)
	assert.Equal(t, EventReplace, second.Type)
	assert.Equal(t, RegionContainer, second.Region)
	assert.Equal(t, "<p>new</p>", second.Markup)
}

func TestHub_BroadcastsToConnectedBrowsers(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Toast("✅ saved")

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, EventToast, ev.Type)
		assert.Equal(t, "✅ saved", ev.Message)
	}
}

func TestHub_RoutesSignalsAndAcks(t *testing.T) {
	hub, srv := startHub(t)

	var mu sync.Mutex
	var got []Signal
	hub.SetSignalHandler(SignalHandlerFunc(func(ctx context.Context, sig Signal) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, sig)
		if sig.Type == SignalActivate && sig.Module == "ghost" {
			return errors.New("module not registered")
		}
		return nil
	}))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(Signal{Type: SignalVisible}))
	require.NoError(t, conn.WriteJSON(Signal{Type: SignalActivate, Module: "ghost", MsgID: "m1"}))

	ack := readEvent(t, conn)
	assert.Equal(t, EventAck, ack.Type)
	assert.Equal(t, "m1", ack.MsgID)
	assert.Equal(t, "module not registered", ack.Error)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, SignalVisible, got[0].Type)
}

func TestSameOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost:8080/ws", nil)
	assert.True(t, sameOrigin(r))

	r.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, sameOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, sameOrigin(r))
}
