package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/metrics"
	"github.com/oszuidwest/zwfm-silentjack/internal/status"
)

// sendBuffer is the per-client outbound queue length. Messages beyond it
// are dropped for that client.
const sendBuffer = 16

// WSEvent is a status event as sent to WebSocket clients.
type WSEvent struct {
	Type    string    `json:"type"`
	Address string    `json:"address"`
	Args    []any     `json:"args"`
	Time    time.Time `json:"ts"`
}

type client struct {
	conn WebSocketConn
	send chan any
}

// Hub tracks connected WebSocket clients and broadcasts status events to
// them. It implements status.Sink.
type Hub struct {
	commands *CommandHandler

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub that routes client commands to commands.
func NewHub(commands *CommandHandler) *Hub {
	return &Hub{
		commands: commands,
		clients:  make(map[*client]struct{}),
	}
}

// Publish implements status.Sink.
func (h *Hub) Publish(ev status.Event) error {
	msg := WSEvent{Type: "event", Address: ev.Address, Args: ev.Args, Time: ev.Time}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		trySend(c.send, msg.Type, msg)
	}
	return nil
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve runs a client session until the connection fails or the hub is
// closed. initial is queued before any event.
func (h *Hub) Serve(conn WebSocketConn, initial any) {
	c := &client{conn: conn, send: make(chan any, sendBuffer)}
	if initial != nil {
		c.send <- initial
	}
	h.add(c)
	defer h.remove(c)

	// Writer goroutine - sole writer to the connection
	go runWriter(c)

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.commands.Handle(cmd, c.send)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if err := c.conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketClients.Inc()
}

// remove unregisters c and ends its writer. Publish holds the read lock
// while sending, so the channel is never written after close.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	metrics.WebSocketClients.Dec()
}

func runWriter(c *client) {
	defer func() {
		if err := c.conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
