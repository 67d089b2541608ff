// Package wspub broadcasts tag updates to connected WebSocket clients.
// The endpoint itself is mounted by the web router; the publisher half is
// driven by the fan-out manager like any other sink.
package wspub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tagsim/tag"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Publisher maintains the set of connected clients and broadcasts each
// update to all of them. A client whose send buffer is full is dropped
// rather than allowed to stall the broadcast.
type Publisher struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	running bool
	logFn   func(format string, args ...interface{})
}

// New creates a WebSocket publisher.
func New(logFn func(format string, args ...interface{})) *Publisher {
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	return &Publisher{
		clients: make(map[*client]struct{}),
		logFn:   logFn,
	}
}

// Name returns the protocol name.
func (p *Publisher) Name() string { return "websocket" }

// Start marks the publisher as accepting connections.
func (p *Publisher) Start() error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	return nil
}

// Stop closes all client connections.
func (p *Publisher) Stop() {
	p.mu.Lock()
	p.running = false
	for c := range p.clients {
		close(c.send)
		c.conn.Close()
		delete(p.clients, c)
	}
	p.mu.Unlock()
}

// Publish broadcasts one update as JSON to every connected client.
func (p *Publisher) Publish(_ context.Context, u tag.Update) error {
	msg, err := json.Marshal(map[string]interface{}{
		"type":      "tag_update",
		"tag":       u.Tag,
		"value":     u.Value,
		"timestamp": u.Timestamp.Unix(),
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			c.conn.Close()
			delete(p.clients, c)
		}
	}
	return nil
}

// Healthy reports whether the publisher accepts connections.
func (p *Publisher) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// ClientCount returns the number of connected clients.
func (p *Publisher) ClientCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// ServeHTTP upgrades an HTTP request to a WebSocket connection and
// registers it for broadcasts.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		http.Error(w, "websocket publisher disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logFn("websocket: upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	p.mu.Lock()
	p.clients[c] = struct{}{}
	p.mu.Unlock()

	go p.writeLoop(c)
	go p.readLoop(c)
}

func (p *Publisher) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			p.drop(c)
			return
		}
	}
}

// readLoop drains inbound frames so pings and close frames are handled.
func (p *Publisher) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			p.drop(c)
			return
		}
	}
}

func (p *Publisher) drop(c *client) {
	p.mu.Lock()
	if _, ok := p.clients[c]; ok {
		delete(p.clients, c)
		close(c.send)
	}
	p.mu.Unlock()
	c.conn.Close()
}
