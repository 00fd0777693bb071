package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is a connected message-oriented duplex link.
// ReadMessage is called from one goroutine; WriteMessage and Close may be
// called concurrently with it.
type Socket interface {
	ReadMessage() (string, error)
	WriteMessage(data string) error
	Close() error
}

// SocketDialer opens Sockets. It is the injection point for duplex
// connections.
type SocketDialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// SocketDialerFunc adapts a function to SocketDialer.
type SocketDialerFunc func(ctx context.Context, url string, header http.Header) (Socket, error)

// Dial calls f.
func (f SocketDialerFunc) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	return f(ctx, url, header)
}

const closeGracePeriod = time.Second

// WebSocketDialer dials sockets with gorilla/websocket.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer wraps dialer. A nil dialer uses websocket.DefaultDialer.
func NewWebSocketDialer(dialer *websocket.Dialer) *WebSocketDialer {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketDialer{dialer: dialer}
}

// Dial performs the WebSocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return NewWebSocket(conn), nil
}

// webSocket adapts *websocket.Conn to Socket. gorilla allows one concurrent
// writer, so writes and the close frame share writeMu.
type webSocket struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocket wraps an established gorilla connection, client or server side.
func NewWebSocket(conn *websocket.Conn) Socket {
	return &webSocket{conn: conn}
}

// ReadMessage returns the next text or binary message as a string.
// Control frames are handled by gorilla and never surface here.
func (s *webSocket) ReadMessage() (string, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (s *webSocket) WriteMessage(data string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(data))
}

// Close sends a normal-closure frame on a best-effort basis and closes the
// underlying connection.
func (s *webSocket) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// endedGracefully reports whether a read error means the peer closed the
// link on purpose rather than a fault.
func endedGracefully(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
