package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"estate-chat/contract"
	"estate-chat/domain"
)

type sentFrame struct {
	event   string
	payload any
}

// fakeChannel records outbound frames and lets tests push inbound
// events through the registered handlers, in receipt order.
type fakeChannel struct {
	state    domain.ConnectionState
	sent     []sentFrame
	handlers map[string][]contract.Handler
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		state:    domain.StateConnected,
		handlers: make(map[string][]contract.Handler),
	}
}

func (c *fakeChannel) Connect(_ context.Context) { c.state = domain.StateConnected }

func (c *fakeChannel) Disconnect() { c.state = domain.StateDisconnected }

func (c *fakeChannel) State() domain.ConnectionState { return c.state }

func (c *fakeChannel) Send(event string, payload any) {
	if c.state != domain.StateConnected {
		return
	}
	c.sent = append(c.sent, sentFrame{event: event, payload: payload})
}

func (c *fakeChannel) Subscribe(event string, handler contract.Handler) uuid.UUID {
	c.handlers[event] = append(c.handlers[event], handler)
	return uuid.New()
}

func (c *fakeChannel) Unsubscribe(event string, _ uuid.UUID) {
	delete(c.handlers, event)
}

func (c *fakeChannel) OnStateChange(_ func(domain.ConnectionState)) {}

// awaitAck waits for an asynchronous read acknowledgement to land.
func awaitAck(t *testing.T, acked <-chan struct{}) {
	t.Helper()
	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("read acknowledgement never fired")
	}
}

// deliver pushes one inbound event through the subscribed handlers.
func (c *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("cannot marshal %s payload: %v", event, err)
	}
	for _, handler := range c.handlers[event] {
		handler(data)
	}
}
