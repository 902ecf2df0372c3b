package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("session closed")

// WebSocketConn adapts a gorilla websocket to Conn. gorilla allows one
// concurrent writer, so data writes are serialized here; control frames
// (ping, close) may be sent concurrently.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewWebSocketConn(ws *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	return &WebSocketConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *WebSocketConn) WriteText(payload string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.closed.Store(true)
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		c.closed.Store(true) // the connection is unusable after a failed write
		return err
	}
	return nil
}

func (c *WebSocketConn) Writable() bool {
	return !c.closed.Load()
}

// Ping sends a keepalive control frame.
func (c *WebSocketConn) Ping() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// CloseWithReason sends a close frame with code and reason, then closes the socket.
func (c *WebSocketConn) CloseWithReason(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}

func (c *WebSocketConn) Close() error {
	return c.CloseWithReason(websocket.CloseNormalClosure, "session closed")
}
