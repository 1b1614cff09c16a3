// Package websocket - websocket/relay.go
package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-panel-relay/logger"
	"go-panel-relay/panel"
	"go-panel-relay/services"
)

// Relay accepts client sockets and gives each its own Session over the shared
// panel controller.
type Relay struct {
	controller panel.Controller
	lease      services.LeaseServiceInterface
	metrics    Recorder
	opts       SessionOptions
	upgrader   websocket.Upgrader

	mu          sync.Mutex
	connections map[*Connection]bool
}

// NewRelay builds a relay. An empty allowedOrigins accepts any origin.
func NewRelay(controller panel.Controller, lease services.LeaseServiceInterface, metrics Recorder,
	opts SessionOptions, allowedOrigins []string) *Relay {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	r := &Relay{
		controller:  controller,
		lease:       lease,
		metrics:     metrics,
		opts:        opts.normalized(),
		connections: make(map[*Connection]bool),
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return r
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		return origin == "" || set[origin]
	}
}

// ServeWs upgrades the HTTP request and starts the read and write pumps.
// clientID identifies the browser for logging.
func (r *Relay) ServeWs(w http.ResponseWriter, req *http.Request, clientID string) {
	logger.Info.Printf("[ServeWs] Upgrading to WS: remoteAddr=%v client=%q", req.RemoteAddr, clientID)
	wsConn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Error.Printf("[ServeWs] WebSocket upgrade error: %v", err)
		return
	}
	r.Attach(wsConn, clientID)
}

// Attach wires an established socket into the relay and starts its pumps.
func (r *Relay) Attach(conn WSConn, clientID string) *Connection {
	c := newConnection(conn)
	c.session = NewSession(uuid.NewString(), clientID, r.controller, r.lease, c, r.metrics, r.opts)

	r.register(c)
	go c.writePump()
	go func() {
		defer r.teardown(c)
		c.readPump()
	}()
	return c
}

// teardown runs once per connection after its read pump exits.
func (r *Relay) teardown(c *Connection) {
	c.session.HandleDisconnect()
	r.unregister(c)
	c.closeSend()
	logger.Info.Printf("[Relay.teardown] session=%s closed (%v)", c.session.ID(), c.conn.RemoteAddr())
}

func (r *Relay) register(c *Connection) {
	r.mu.Lock()
	r.connections[c] = true
	r.mu.Unlock()
	r.metrics.ConnectionOpened()
}

func (r *Relay) unregister(c *Connection) {
	r.mu.Lock()
	_, ok := r.connections[c]
	delete(r.connections, c)
	r.mu.Unlock()
	if ok {
		r.metrics.ConnectionClosed()
	}
}

// ConnectionCount returns the number of open sockets.
func (r *Relay) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

// Close shuts every socket; each read pump then runs the normal teardown.
func (r *Relay) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if err := c.conn.Close(); err != nil {
			logger.Debug.Printf("[Relay.Close] %v: %v", c.conn.RemoteAddr(), err)
		}
	}
}

// Shutdown closes every socket and waits for their teardown, so the panel is
// released before the process exits.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.Close()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for r.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
