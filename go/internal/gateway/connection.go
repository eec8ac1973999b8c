package gateway

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when a client is not draining its messages.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Role is fixed per connection at upgrade time.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDisplay Role = "display"
)

// RoleFromRequest derives the connection role from the request target: any
// target mentioning "admin" is an admin connection.
func RoleFromRequest(r *http.Request) Role {
	if strings.Contains(r.URL.RequestURI(), "admin") {
		return RoleAdmin
	}
	return RoleDisplay
}

// Transport is the subset of *websocket.Conn a Connection uses.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Connection represents a WebSocket connection to a scoreboard client
type Connection struct {
	ID          string
	Role        Role
	RemoteAddr  string
	ConnectedAt time.Time

	transport Transport
	send      chan []byte
	pingDue   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
	limiter   *rate.Limiter
	manager   *ConnectionManager
	config    ConnectionConfig
}

// NewConnection wraps a transport. The connection starts out alive.
func NewConnection(id string, transport Transport, role Role, remoteAddr string, config ConnectionConfig) *Connection {
	c := &Connection{
		ID:          id,
		Role:        role,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		transport:   transport,
		send:        make(chan []byte, config.SendBufferSize),
		pingDue:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		limiter:     rate.NewLimiter(rate.Limit(config.MessageRate), config.MessageBurst),
		config:      config,
	}
	c.alive.Store(true)
	return c
}

// Enqueue queues a message for the write pump without blocking.
func (c *Connection) Enqueue(message []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Alive reports the liveness flag.
func (c *Connection) Alive() bool {
	return c.alive.Load()
}

func (c *Connection) markAlive() {
	c.alive.Store(true)
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close terminates the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	return err
}

// closeWithReason sends a close frame before terminating.
func (c *Connection) closeWithReason(code int, reason string) {
	deadline := time.Now().Add(c.config.WriteTimeout)
	_ = c.transport.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.Close()
}

// schedulePing queues a ping for the write pump; a ping already pending is
// not duplicated.
func (c *Connection) schedulePing() {
	select {
	case c.pingDue <- struct{}{}:
	default:
	}
}

func (c *Connection) allow() bool {
	return c.limiter.Allow()
}

func (c *Connection) unregister() {
	if c.manager != nil {
		c.manager.Unregister(c)
		return
	}
	_ = c.Close()
}

// Start launches the read and write pumps.
func (c *Connection) Start(handle func(*Connection, []byte)) {
	go c.writePump()
	go c.readPump(handle)
}

// writePump handles sending messages and heartbeat pings to the client
func (c *Connection) writePump() {
	defer c.unregister()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			_ = c.transport.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.transport.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-c.pingDue:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.transport.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the client
func (c *Connection) readPump(handle func(*Connection, []byte)) {
	defer c.unregister()

	c.transport.SetReadLimit(c.config.MaxMessageSize)
	c.transport.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	for {
		_, message, err := c.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.Closed() {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		handle(c, message)
	}
}
