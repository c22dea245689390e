package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal socket surface the registry needs. Wrapping the
// gorilla connection keeps the registry testable with in-memory fakes.
type Conn interface {
	// SendText writes one text frame
	SendText(data []byte) error

	// Close sends a close frame with the given code and reason, then
	// closes the socket
	Close(code int, reason string) error
}

// GorillaConn adapts a gorilla websocket connection. Gorilla permits
// only one concurrent writer, the mutex serializes frames from the
// registry, the monitor and the read loop's replies.
type GorillaConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewGorillaConn wraps a gorilla connection with a per-write deadline.
func NewGorillaConn(conn *websocket.Conn, writeTimeout time.Duration) *GorillaConn {
	return &GorillaConn{conn: conn, writeTimeout: writeTimeout}
}

// SendText writes one text frame under the write deadline.
func (c *GorillaConn) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks until the next frame arrives. Reads are not
// serialized, gorilla permits one concurrent reader and the handler's
// read loop is the only one.
func (c *GorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close sends a close frame and tears the socket down.
func (c *GorillaConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return c.conn.Close()
}
