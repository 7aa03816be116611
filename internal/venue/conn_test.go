package venue

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer upgrades each request and hands the connection to handle.
func wsTestServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// A connection that is accepted and dropped before delivering any frame
// must not count as progress, so the reconnect backoff keeps growing.
func TestConnectAndReadDroppedBeforeFrame(t *testing.T) {
	t.Parallel()
	srv := wsTestServer(t, func(conn *websocket.Conn) {})

	s := &wsSession{
		name:      "drop",
		url:       wsURL(srv),
		logger:    slog.Default(),
		onMessage: func(*wsSession, []byte) {},
	}
	received, err := s.connectAndRead(context.Background())
	require.Error(t, err)
	assert.False(t, received)
}

func TestConnectAndReadCountsDeliveredFrame(t *testing.T) {
	t.Parallel()
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":1}`))
	})

	var frames int
	s := &wsSession{
		name:      "one-frame",
		url:       wsURL(srv),
		logger:    slog.Default(),
		onMessage: func(*wsSession, []byte) { frames++ },
	}
	received, err := s.connectAndRead(context.Background())
	require.Error(t, err, "server closes after one frame")
	assert.True(t, received)
	assert.Equal(t, 1, frames)
}

func TestConnectAndReadSubscribeFailure(t *testing.T) {
	t.Parallel()
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	s := &wsSession{
		name:      "bad-subscribe",
		url:       wsURL(srv),
		logger:    slog.Default(),
		onConnect: func(*wsSession) error { return assert.AnError },
		onMessage: func(*wsSession, []byte) {},
	}
	received, err := s.connectAndRead(context.Background())
	require.Error(t, err)
	assert.False(t, received)
}
