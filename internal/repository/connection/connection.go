package connection

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
)

// Conn is a member's websocket connection. Writes are serialized since a
// connection can be written to by its own reader and by broadcasts from other
// members' handlers.
type Conn struct {
	*websocket.Conn
	writeMu sync.Mutex
	held    bool
	queue   []any
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{Conn: ws}
}

// NewHeldConn returns a connection that queues every write until Release.
// Broadcasts can reach it as soon as it is registered while the member still
// has to receive its first message.
func NewHeldConn(ws *websocket.Conn) *Conn {
	return &Conn{Conn: ws, held: true}
}

func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.held {
		c.queue = append(c.queue, v)
		return nil
	}

	return c.Conn.WriteJSON(v)
}

// Release writes first and then the writes queued while the connection was
// held, in order.
func (c *Conn) Release(first any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	queue := c.queue
	c.held = false
	c.queue = nil

	if err := c.Conn.WriteJSON(first); err != nil {
		return err
	}

	for _, v := range queue {
		if err := c.Conn.WriteJSON(v); err != nil {
			return err
		}
	}

	return nil
}

// Close is a no-op for placeholder connections without a socket.
func (c *Conn) Close() error {
	if c.Conn == nil {
		return nil
	}

	return c.Conn.Close()
}
