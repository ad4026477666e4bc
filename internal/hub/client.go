package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// -------------------------------------------------------------------------
// Client
// -------------------------------------------------------------------------

const (
	// sendBufferSize bounds the per-connection outbound queue. A full
	// buffer means the observer is too slow and gets dropped.
	sendBufferSize = 256

	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second
)

// Client is one live connection. All writes go through the buffered send
// channel and a single writer goroutine so broadcasts never block on a
// slow socket.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string

	// lastActiveUsers paces the opportunistic active_users broadcast.
	// Touched only from the connection's reader goroutine.
	lastActiveUsers time.Time

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	remote := "unknown"
	if conn != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		remote: remote,
	}
}

// trySend queues a message without blocking. A full queue reports false;
// the caller drops the client.
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send queue exactly once; the writer goroutine exits
// after draining and closes the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump drains the send queue onto the socket. It exits when the
// queue closes or a write fails; either way it closes the socket, which
// in turn unblocks the reader.
func (c *Client) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
