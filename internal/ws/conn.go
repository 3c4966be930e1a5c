package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// wsConn adapts a gorilla connection to the registry's Conn interface.
// gorilla connections do not support concurrent writers, so every write is
// serialized through the mutex.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewConn wraps a gorilla WebSocket connection.
func NewConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

// WriteJSON sends a JSON-encoded message with a write deadline.
func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Close sends a close frame best-effort and closes the transport.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
	return c.conn.Close()
}
