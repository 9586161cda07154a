package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"estate-chat/domain"
)

// relayServer is a minimal websocket endpoint for channel tests: it
// records the Authorization header of every handshake, exposes the
// accepted connections and forwards every inbound frame.
type relayServer struct {
	srv     *httptest.Server
	headers chan string
	conns   chan *websocket.Conn
	frames  chan Frame
}

func newRelayServer(t *testing.T) *relayServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	rs := &relayServer{
		headers: make(chan string, 16),
		conns:   make(chan *websocket.Conn, 16),
		frames:  make(chan Frame, 16),
	}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.headers <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rs.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := ParseFrame(raw)
			if err != nil {
				continue
			}
			rs.frames <- frame
		}
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *relayServer) wsURL() string {
	return "ws" + strings.TrimPrefix(rs.srv.URL, "http")
}

func (rs *relayServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-rs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted in time")
		return nil
	}
}

func (rs *relayServer) nextFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case frame := <-rs.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received in time")
		return Frame{}
	}
}

// stateRecorder collects state transitions so tests can wait for one.
type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ConnectionState
	signal chan domain.ConnectionState
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{signal: make(chan domain.ConnectionState, 32)}
}

func (r *stateRecorder) record(state domain.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	r.signal <- state
}

func (r *stateRecorder) waitFor(t *testing.T, wanted domain.ConnectionState) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case state := <-r.signal:
			if state == wanted {
				return
			}
		case <-deadline:
			t.Fatalf("never reached state %s, saw %v", wanted, r.snapshot())
		}
	}
}

func (r *stateRecorder) snapshot() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConnectionState, len(r.states))
	copy(out, r.states)
	return out
}

func newTestChannel(rs *relayServer, attempts int, delay time.Duration) (*Channel, *stateRecorder) {
	ch := NewChannel(Config{
		URL:               rs.wsURL(),
		Token:             "test-token",
		UserID:            "alice",
		ReconnectAttempts: attempts,
		ReconnectDelay:    delay,
	}, slog.Default())
	recorder := newStateRecorder()
	ch.OnStateChange(recorder.record)
	return ch, recorder
}

func Test_Channel_connect_announces_presence_with_the_bearer_token(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	ch, recorder := newTestChannel(rs, 5, 10*time.Millisecond)
	defer ch.Disconnect()

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateConnected)

	req.Equal("Bearer test-token", <-rs.headers)

	// The very first frame binds the connection to its user.
	frame := rs.nextFrame(t)
	req.Equal(EventNewUser, frame.Event)
	var userID string
	req.NoError(json.Unmarshal(frame.Data, &userID))
	req.Equal("alice", userID)

	req.Equal([]domain.ConnectionState{domain.StateConnecting, domain.StateConnected},
		recorder.snapshot())
}

func Test_Channel_dispatches_inbound_frames_to_subscribers(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	ch, recorder := newTestChannel(rs, 5, 10*time.Millisecond)
	defer ch.Disconnect()

	received := make(chan json.RawMessage, 8)
	subID := ch.Subscribe(EventGetMessage, func(data json.RawMessage) {
		received <- data
	})

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateConnected)
	server := rs.nextConn(t)
	rs.nextFrame(t) // presence announcement

	frame, err := NewFrame(EventGetMessage, map[string]string{"text": "hello"})
	req.NoError(err)
	req.NoError(server.WriteJSON(frame))

	select {
	case data := <-received:
		req.JSONEq(`{"text":"hello"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}

	// Frames without an event name and frames for other events are
	// dropped without reaching the handler.
	req.NoError(server.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	other, err := NewFrame("presence", map[string]string{"userId": "bob"})
	req.NoError(err)
	req.NoError(server.WriteJSON(other))

	ch.Unsubscribe(EventGetMessage, subID)
	req.NoError(server.WriteJSON(frame))

	select {
	case <-received:
		t.Fatal("handler fired after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_Channel_send_drops_frames_while_disconnected(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	ch, _ := newTestChannel(rs, 5, 10*time.Millisecond)

	// No panic, no queueing: the frame just never arrives.
	ch.Send(EventSendMessage, OutboundMessage{ReceiverID: "bob"})
	req.Equal(domain.StateDisconnected, ch.State())
	select {
	case <-rs.frames:
		t.Fatal("frame escaped a disconnected channel")
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_Channel_reconnects_and_reannounces_after_a_drop(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	ch, recorder := newTestChannel(rs, 5, 10*time.Millisecond)
	defer ch.Disconnect()

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateConnected)
	first := rs.nextConn(t)
	firstHello := rs.nextFrame(t)
	req.Equal(EventNewUser, firstHello.Event)

	// Server-side drop: the channel must come back on its own and
	// re-announce presence for routing.
	req.NoError(first.Close())
	recorder.waitFor(t, domain.StateDisconnected)
	recorder.waitFor(t, domain.StateConnected)

	rs.nextConn(t)
	secondHello := rs.nextFrame(t)
	req.Equal(EventNewUser, secondHello.Event)

	var userID string
	req.NoError(json.Unmarshal(secondHello.Data, &userID))
	req.Equal("alice", userID)
}

func Test_Channel_gives_up_after_the_attempt_bound(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	url := rs.wsURL()
	rs.srv.Close() // nothing listens anymore

	ch := NewChannel(Config{
		URL:               url,
		UserID:            "alice",
		ReconnectAttempts: 3,
		ReconnectDelay:    5 * time.Millisecond,
	}, slog.Default())
	recorder := newStateRecorder()
	ch.OnStateChange(recorder.record)

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateDisconnected)
	req.Equal(domain.StateDisconnected, ch.State())

	// Exhausted attempts leave the channel parked: no background
	// retries, the next Connect starts a fresh cycle.
	time.Sleep(50 * time.Millisecond)
	req.Equal(domain.StateDisconnected, ch.State())
}

func Test_Channel_parks_after_losing_an_established_connection(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)

	ch := NewChannel(Config{
		URL:               rs.wsURL(),
		UserID:            "alice",
		ReconnectAttempts: 3,
		ReconnectDelay:    5 * time.Millisecond,
	}, slog.Default())
	recorder := newStateRecorder()
	ch.OnStateChange(recorder.record)

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateConnected)
	server := rs.nextConn(t)
	rs.nextFrame(t) // presence announcement

	// Kill the listener first so every redial is refused, then drop
	// the live connection: the channel must retry up to the bound and
	// then park Disconnected.
	rs.srv.Close()
	req.NoError(server.Close())

	recorder.waitFor(t, domain.StateDisconnected)
	recorder.waitFor(t, domain.StateConnecting)
	recorder.waitFor(t, domain.StateDisconnected)

	// Parked: no background retries after exhaustion.
	time.Sleep(50 * time.Millisecond)
	req.Equal(domain.StateDisconnected, ch.State())
	req.Equal([]domain.ConnectionState{
		domain.StateConnecting,
		domain.StateConnected,
		domain.StateDisconnected,
		domain.StateConnecting,
		domain.StateDisconnected,
	}, recorder.snapshot())
}

func Test_Channel_manual_disconnect_suppresses_reconnection(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	ch, recorder := newTestChannel(rs, 5, 10*time.Millisecond)

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateConnected)
	rs.nextConn(t)
	rs.nextFrame(t)

	ch.Disconnect()
	recorder.waitFor(t, domain.StateDisconnected)

	// No second handshake: a deliberate disconnect stays down.
	select {
	case <-rs.conns:
		t.Fatal("channel reconnected after a manual disconnect")
	case <-time.After(150 * time.Millisecond):
	}
	req.Equal(domain.StateDisconnected, ch.State())
}

func Test_Channel_connect_is_idempotent_while_up(t *testing.T) {
	req := require.New(t)
	rs := newRelayServer(t)
	ch, recorder := newTestChannel(rs, 5, 10*time.Millisecond)
	defer ch.Disconnect()

	ch.Connect(context.Background())
	recorder.waitFor(t, domain.StateConnected)
	rs.nextConn(t)

	ch.Connect(context.Background())
	select {
	case <-rs.conns:
		t.Fatal("a second Connect dialed again while connected")
	case <-time.After(100 * time.Millisecond):
	}
	req.Equal(domain.StateConnected, ch.State())
}
