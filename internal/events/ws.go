package events

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 2 * time.Second

// WebSocketSink pushes events as JSON text messages over a websocket.
type WebSocketSink struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Sink = (*WebSocketSink)(nil)

// DialWebSocket connects to rawURL (ws:// or wss://).
func DialWebSocket(rawURL string, logger *slog.Logger) (*WebSocketSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("events: invalid websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("events: websocket url must be ws:// or wss://, got %q", u.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("events: websocket dial %s: %w", u.Redacted(), err)
	}
	logger.Info("events: websocket connected", "url", u.Redacted())
	return &WebSocketSink{url: u.Redacted(), logger: logger, conn: conn}, nil
}

// Name implements Sink.
func (s *WebSocketSink) Name() string { return "websocket" }

// Send implements Sink.
func (s *WebSocketSink) Send(ev Event) error {
	payload, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket closed")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close implements Sink. It sends a close frame before closing the
// connection. Idempotent.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	err := s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	if err != nil {
		s.logger.Warn("events: websocket close frame failed", "error", err)
	}

	cerr := s.conn.Close()
	s.conn = nil
	s.logger.Info("events: websocket disconnected", "url", s.url)
	return cerr
}
