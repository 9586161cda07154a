// Package server is the reference messaging backend: the REST surface
// of the chat contract plus the realtime hub that forwards frames
// between a user's active connections.
package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"estate-chat/channel"
	"estate-chat/observability"
)

const sendQueueSize = 64

// conn is one user connection. A single user may hold several
// connections (one per device/tab), each maintained separately with
// its own outbound queue consumed by a single writer goroutine.
type conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	closed bool // guarded by the hub mutex
}

// Hub indexes active connections per user and forwards frames to all
// of the addressed user's connections. It never persists anything:
// persistence happened on the REST path before the frame was emitted.
type Hub struct {
	log   *slog.Logger
	stats *observability.RelayStats

	mu     sync.RWMutex
	byUser map[string]map[string]*conn
}

func NewHub(log *slog.Logger, stats *observability.RelayStats) *Hub {
	return &Hub{
		log:    log,
		stats:  stats,
		byUser: make(map[string]map[string]*conn),
	}
}

// Register wraps a fresh websocket into a managed connection and
// starts its writer goroutine.
func (h *Hub) Register(ws *websocket.Conn) *conn {
	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
	h.stats.ConnOpened()
	go c.writeLoop()
	return c
}

// Bind attaches a connection to its owning user for routing. Called
// when the newUser announcement lands; rebinding is a no-op.
func (h *Hub) Bind(c *conn, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.userID == userID {
		return
	}
	c.userID = userID
	if _, ok := h.byUser[userID]; !ok {
		h.byUser[userID] = make(map[string]*conn)
	}
	h.byUser[userID][c.id] = c
	h.log.Info("Connection bound", "user", userID, "conn", c.id)
}

// Unregister removes a connection from the routing index and closes
// its outbound queue, which stops the writer goroutine. The close
// happens under the hub lock: Relay sends under the read lock, so a
// queue can never be closed while a send on it is in flight.
// Idempotent, a second call is a no-op.
func (h *Hub) Unregister(c *conn) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	if c.userID != "" {
		if conns, ok := h.byUser[c.userID]; ok {
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.byUser, c.userID)
			}
		}
	}
	close(c.send)
	h.mu.Unlock()

	h.stats.ConnClosed()
}

// Relay forwards one frame to every active connection of the receiver.
// A slow connection with a full queue is skipped rather than allowed
// to stall the hub; the drop is counted.
func (h *Hub) Relay(receiverID string, frame channel.Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Cannot encode relay frame", "event", frame.Event, "err", err)
		return
	}

	// Sends are non-blocking, so they stay under the read lock. A
	// disconnecting receiver holds the write lock to close its queue
	// and cannot interleave with a send here.
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.byUser[receiverID]
	if len(conns) == 0 {
		h.log.Debug("Receiver has no active connection", "user", receiverID)
		return
	}

	for _, c := range conns {
		select {
		case c.send <- payload:
			h.stats.Relayed()
		default:
			h.stats.Dropped()
			h.log.Warn("Dropping frame for slow connection", "user", receiverID, "conn", c.id)
		}
	}
}

// writeLoop is the single writer of a connection. It drains the queue
// until Unregister closes it.
func (c *conn) writeLoop() {
	for payload := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
