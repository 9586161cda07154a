// Package channel owns the persistent realtime connection to the
// messaging backend. One channel is created per authenticated session
// and torn down on logout; every open conversation shares it.
package channel

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"estate-chat/contract"
	"estate-chat/domain"
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 1000 * time.Millisecond
	defaultHandshakeTimeout  = 10 * time.Second
)

// Config carries the externally configurable knobs of the channel.
// The reconnect bound and delay mirror the historical defaults and are
// not invariants of the design.
type Config struct {
	URL               string
	Token             string
	UserID            string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
}

func (c *Config) norm() {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
}

type subscription struct {
	id uuid.UUID
	fn contract.Handler
}

// Channel implements contract.IChannel over a websocket connection.
//
// Connection errors are logged and reflected in the state, never
// returned: callers observe connectivity through OnStateChange and
// gate their own affordances (e.g. disable send controls).
type Channel struct {
	cfg    Config
	log    *slog.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	writeMu sync.Mutex
	state   domain.ConnectionState
	conn    *websocket.Conn
	manual  bool // explicit Disconnect: no automatic reconnection
	cycle   int  // bumped per Connect/Disconnect; stale goroutines bail out

	subs     map[string][]subscription
	stateFns []func(domain.ConnectionState)
}

func NewChannel(cfg Config, log *slog.Logger) *Channel {
	cfg.norm()
	return &Channel{
		cfg:    cfg,
		log:    log,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:  domain.StateDisconnected,
		subs:   make(map[string][]subscription),
	}
}

// Connect starts the connection attempt loop in the background.
// Idempotent while the channel is already Connecting or Connected.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != domain.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.cycle++
	cycle := c.cycle
	c.mu.Unlock()

	c.setState(cycle, domain.StateConnecting)
	go c.runConnect(ctx, cycle)
}

// runConnect dials up to the configured attempt bound with a fixed
// inter-attempt delay. On success it announces presence and starts the
// read pump; after exhausting attempts the channel stays Disconnected
// until a manual Connect.
func (c *Channel) runConnect(ctx context.Context, cycle int) {
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		header := http.Header{}
		if c.cfg.Token != "" {
			header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			c.mu.Lock()
			if cycle != c.cycle || c.manual {
				c.mu.Unlock()
				_ = conn.Close()
				return
			}
			c.conn = conn
			c.mu.Unlock()

			c.setState(cycle, domain.StateConnected)
			c.announcePresence()
			go c.readPump(ctx, conn, cycle)
			return
		}

		c.log.Warn("Connect attempt failed",
			"attempt", attempt, "max", c.cfg.ReconnectAttempts, "err", err)

		if attempt == c.cfg.ReconnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			c.setState(cycle, domain.StateDisconnected)
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}

	c.log.Error("Reconnect attempts exhausted, staying disconnected")
	c.setState(cycle, domain.StateDisconnected)
}

// readPump delivers inbound frames in receipt order. Handlers run
// sequentially on this goroutine, so dependents never observe two
// events concurrently.
func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn, cycle int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err == nil {
			c.dispatch(raw)
			continue
		}

		c.mu.Lock()
		stale := cycle != c.cycle
		manual := c.manual
		if !stale {
			c.conn = nil
		}
		c.mu.Unlock()

		if stale || manual {
			return
		}

		c.log.Warn("Connection lost, reconnecting", "err", err)
		c.setState(cycle, domain.StateDisconnected)
		c.setState(cycle, domain.StateConnecting)
		c.runConnect(ctx, cycle)
		return
	}
}

// Disconnect closes the connection and suppresses reconnection.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.cycle++
	cycle := c.cycle
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.setState(cycle, domain.StateDisconnected)
}

func (c *Channel) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send emits one event frame. When the channel is not Connected the
// frame is dropped, not queued, and the drop is only logged.
func (c *Channel) Send(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != domain.StateConnected || conn == nil {
		c.log.Warn("Dropping frame, channel not connected", "event", event)
		return
	}

	frame, err := NewFrame(event, payload)
	if err != nil {
		c.log.Error("Cannot encode frame", "event", event, "err", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		c.log.Error("Write failed", "event", event, "err", err)
	}
}

// Subscribe registers a handler for an event name and returns its
// subscription id for deterministic removal on teardown.
func (c *Channel) Subscribe(event string, handler contract.Handler) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New()
	c.subs[event] = append(c.subs[event], subscription{id: id, fn: handler})
	return id
}

func (c *Channel) Unsubscribe(event string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.subs[event][:0]
	for _, sub := range c.subs[event] {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(c.subs, event)
		return
	}
	c.subs[event] = kept
}

// OnStateChange registers a callback fired synchronously with every
// state transition.
func (c *Channel) OnStateChange(fn func(state domain.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateFns = append(c.stateFns, fn)
}

// announcePresence tells the server which user this connection
// represents. Required for routing; re-sent after every reconnect.
func (c *Channel) announcePresence() {
	c.Send(EventNewUser, c.cfg.UserID)
}

// dispatch parses a raw frame and hands it to the subscribed handlers,
// one event at a time. Malformed frames are logged and skipped rather
// than dispatched optimistically.
func (c *Channel) dispatch(raw []byte) {
	frame, err := ParseFrame(raw)
	if err != nil {
		c.log.Warn("Skipping malformed frame", "err", err)
		return
	}

	c.mu.Lock()
	handlers := make([]subscription, len(c.subs[frame.Event]))
	copy(handlers, c.subs[frame.Event])
	c.mu.Unlock()

	for _, sub := range handlers {
		sub.fn(frame.Data)
	}
}

// setState applies a transition unless the connect cycle went stale,
// then fires the callbacks outside the lock.
func (c *Channel) setState(cycle int, state domain.ConnectionState) {
	c.mu.Lock()
	if cycle != c.cycle || c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	fns := make([]func(domain.ConnectionState), len(c.stateFns))
	copy(fns, c.stateFns)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
