package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialBackoff   = time.Second
	maxReconnectWait = 30 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
)

// wsSession maintains one WebSocket connection with auto-reconnect. On each
// (re)connect it calls onConnect to send subscriptions, then feeds every
// frame to onMessage. The backoff doubles 1s to 30s and resets once a
// frame has actually been read, so an endpoint that accepts dials and
// drops them immediately still backs off.
type wsSession struct {
	name   string
	url    string
	logger *slog.Logger

	// onConnect sends the subscription payloads for this session.
	onConnect func(s *wsSession) error
	// onMessage handles one raw frame. It may call reply to answer
	// server-side pings.
	onMessage func(s *wsSession, data []byte)
	// ping, when non-nil, is sent every pingEvery.
	ping      []byte
	pingEvery time.Duration

	connMu sync.Mutex
	conn   *websocket.Conn
}

// run blocks until ctx is cancelled.
func (s *wsSession) run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		received, err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			backoff = initialBackoff
		}

		s.logger.Warn("websocket disconnected, reconnecting",
			"stream", s.name,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// connectAndRead reports whether at least one frame was read, so the
// caller resets its backoff only for connections that delivered data.
func (s *wsSession) connectAndRead(ctx context.Context) (received bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	if s.onConnect != nil {
		if err := s.onConnect(s); err != nil {
			return false, fmt.Errorf("subscribe: %w", err)
		}
	}

	s.logger.Info("websocket connected", "stream", s.name)

	if s.ping != nil {
		pingCtx, pingCancel := context.WithCancel(ctx)
		defer pingCancel()
		go s.pingLoop(pingCtx)
	}

	for {
		if ctx.Err() != nil {
			return received, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read: %w", err)
		}

		received = true
		s.onMessage(s, msg)
	}
}

func (s *wsSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.write(websocket.TextMessage, s.ping); err != nil {
				s.logger.Warn("ping failed", "stream", s.name, "error", err)
				return
			}
		}
	}
}

func (s *wsSession) write(msgType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, data)
}

func (s *wsSession) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// streamClock tracks the last message time per stream key for the
// staleness monitor.
type streamClock struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func newStreamClock() *streamClock {
	return &streamClock{last: make(map[string]time.Time), now: time.Now}
}

func (c *streamClock) mark(key string) {
	c.mu.Lock()
	c.last[key] = c.now()
	c.mu.Unlock()
}

// stale returns the streams silent for longer than maxAge, keyed to how
// long each has been silent.
func (c *streamClock) stale(maxAge time.Duration) map[string]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(map[string]time.Duration)
	for key, ts := range c.last {
		if age := now.Sub(ts); age > maxAge {
			out[key] = age
		}
	}
	return out
}
