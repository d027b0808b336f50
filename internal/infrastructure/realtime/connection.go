package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	sendBuffer = 128
)

// Close codes used by the hub on top of the RFC 6455 ones.
const (
	CloseSlowConsumer = 4008
	CloseShutdown     = websocket.CloseGoingAway
)

var (
	ErrConnectionClosed = errors.New("realtime: connection closed")
	ErrBufferExceeded   = errors.New("realtime: connection buffer exceeded")
)

// Socket is the subset of *websocket.Conn the write loop needs.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection wraps a websocket and coordinates outbound writes via a buffered channel.
// A connection is uniquely identified per session; one user may hold several.
type Connection struct {
	ID     string
	UserID string

	ws    Socket
	send  chan []byte
	drain chan closeRequest
	once  sync.Once
	close chan struct{}
}

type closeRequest struct {
	code   int
	reason string
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID string, ws Socket) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		drain:  make(chan closeRequest, 1),
		close:  make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. If the client is slow and the buffer is full,
// the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}
	select {
	case <-c.close:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(CloseSlowConsumer, "send buffer full")
		return ErrBufferExceeded
	}
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.close
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// Drain closes the connection once the frames already handed to Send are on
// the wire. It falls back to Close if the write loop does not get there
// within writeWait.
func (c *Connection) Drain(code int, reason string) {
	select {
	case c.drain <- closeRequest{code: code, reason: reason}:
	case <-c.close:
		return
	default:
		// a drain is already pending
	}
	select {
	case <-c.close:
	case <-time.After(writeWait):
		c.Close(code, reason)
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.flush(msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case req := <-c.drain:
			for n := len(c.send); n > 0; n-- {
				if err := c.write(websocket.TextMessage, <-c.send); err != nil {
					break
				}
			}
			c.Close(req.code, req.reason)
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

// flush writes first and then whatever else is already queued, so a burst of
// fanout costs one wake-up of the loop.
func (c *Connection) flush(first []byte) error {
	if err := c.write(websocket.TextMessage, first); err != nil {
		return err
	}
	for n := len(c.send); n > 0; n-- {
		if err := c.write(websocket.TextMessage, <-c.send); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
