// Package websocket provides the WebSocket server and connection handling.
// file: websocket/connection.go
package websocket

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-panel-relay/logger"
	"go-panel-relay/models"
)

// WSConn is an interface for the WebSocket connection.
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	ReadMessage() (int, []byte, error)
	Close() error
	RemoteAddr() net.Addr
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// Configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2048
	sendBufferSize = 256
)

// Connection represents a single WebSocket connection for one client.
type Connection struct {
	conn    WSConn
	send    chan []byte
	session *Session

	mu     sync.Mutex
	closed bool
}

func newConnection(conn WSConn) *Connection {
	return &Connection{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Emit queues one event for the write pump. A full queue drops the event.
func (c *Connection) Emit(event string, payload interface{}) error {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeSend stops the write pump after it drains the queue.
func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump handles inbound messages from the client. It returns when the
// socket fails or the client sends an explicit disconnect.
func (c *Connection) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn.Printf("[readPump] Read error from %v: %v", c.conn.RemoteAddr(), err)
			} else {
				logger.Debug.Printf("[readPump] %v closed: %v", c.conn.RemoteAddr(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			logger.Debug.Printf("[readPump] Ignoring non-text messageType=%d", messageType)
			continue
		}

		env, err := decodeEnvelope(message)
		if err != nil {
			logger.Warn.Printf("[readPump] Invalid frame from %v: %v", c.conn.RemoteAddr(), err)
			if emitErr := c.Emit(models.EventError, models.ErrorPayload{Message: err.Error()}); emitErr != nil {
				logger.Debug.Printf("[readPump] error reply to %v: %v", c.conn.RemoteAddr(), emitErr)
			}
			continue
		}

		c.session.HandleEvent(env)
		if env.Event == models.EventDisconnect {
			return
		}
	}
}

// writePump handles outbound messages to the client, including periodic pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				logger.Debug.Printf("[writePump] Send channel closed for %v", c.conn.RemoteAddr())
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn.Printf("[writePump] Error writing to %v: %v", c.conn.RemoteAddr(), err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn.Printf("[writePump] Ping error for %v: %v", c.conn.RemoteAddr(), err)
				return
			}
		}
	}
}
