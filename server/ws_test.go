package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"estate-chat/channel"
	"estate-chat/domain"
)

func dialSocket(t *testing.T, tb *testBackend, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tb.srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func announce(t *testing.T, ws *websocket.Conn, userID string) {
	t.Helper()
	frame, err := channel.NewFrame(channel.EventNewUser, userID)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(frame))
}

func sendOverSocket(t *testing.T, ws *websocket.Conn, receiverID string, message domain.Message) {
	t.Helper()
	frame, err := channel.NewFrame(channel.EventSendMessage,
		channel.OutboundMessage{ReceiverID: receiverID, Data: message})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(frame))
}

func expectDelivery(t *testing.T, ws *websocket.Conn) domain.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	frame, err := channel.ParseFrame(raw)
	require.NoError(t, err)
	require.Equal(t, channel.EventGetMessage, frame.Event)
	var message domain.Message
	require.NoError(t, json.Unmarshal(frame.Data, &message))
	return message
}

func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
}

func testMessage(senderID, text string) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		ChatID:    uuid.New(),
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func Test_Socket_relays_between_announced_users(t *testing.T) {
	req := require.New(t)
	tb := newTestBackend(t)

	alice := dialSocket(t, tb, "alice")
	bob := dialSocket(t, tb, "bob")
	announce(t, alice, "alice")
	announce(t, bob, "bob")
	// Binding happens on the read loop; give it a beat before relaying.
	time.Sleep(50 * time.Millisecond)

	sent := testMessage("alice", "is the flat still listed?")
	sendOverSocket(t, alice, "bob", sent)

	delivered := expectDelivery(t, bob)
	req.Equal(sent.ID, delivered.ID)
	req.Equal("alice", delivered.SenderID)
	req.Equal("is the flat still listed?", delivered.Text)

	// The sender hears nothing back, frames go to the receiver only.
	expectSilence(t, alice)
}

func Test_Socket_fans_out_to_every_connection_of_the_receiver(t *testing.T) {
	req := require.New(t)
	tb := newTestBackend(t)

	alice := dialSocket(t, tb, "alice")
	bobPhone := dialSocket(t, tb, "bob")
	bobLaptop := dialSocket(t, tb, "bob")
	announce(t, alice, "alice")
	announce(t, bobPhone, "bob")
	announce(t, bobLaptop, "bob")
	time.Sleep(50 * time.Millisecond)

	sent := testMessage("alice", "offer accepted")
	sendOverSocket(t, alice, "bob", sent)

	req.Equal(sent.ID, expectDelivery(t, bobPhone).ID)
	req.Equal(sent.ID, expectDelivery(t, bobLaptop).ID)
}

func Test_Socket_rejects_spoofed_frames(t *testing.T) {
	req := require.New(t)
	tb := newTestBackend(t)

	alice := dialSocket(t, tb, "alice")
	bob := dialSocket(t, tb, "bob")
	eve := dialSocket(t, tb, "eve")
	announce(t, alice, "alice")
	announce(t, bob, "bob")
	// A connection may only announce its own authenticated user:
	// eve claiming to be bob must not receive bob's messages.
	announce(t, eve, "bob")
	time.Sleep(50 * time.Millisecond)

	// Impersonated sender first, legitimate message second. An expired
	// read deadline poisons a gorilla connection, so each connection
	// gets its silence check only after its last expected delivery.
	sendOverSocket(t, eve, "bob", testMessage("alice", "spoofed"))
	sent := testMessage("alice", "legitimate")
	sendOverSocket(t, alice, "bob", sent)

	// Had the spoofed frame been relayed it would reach bob too; the
	// one delivery he sees must be the legitimate message, and nothing
	// may follow it.
	delivered := expectDelivery(t, bob)
	req.Equal(sent.ID, delivered.ID)
	req.Equal("legitimate", delivered.Text)
	expectSilence(t, bob)
	expectSilence(t, eve)
}

func Test_Socket_ignores_unannounced_receivers_and_malformed_frames(t *testing.T) {
	tb := newTestBackend(t)

	alice := dialSocket(t, tb, "alice")
	announce(t, alice, "alice")
	time.Sleep(50 * time.Millisecond)

	// Nobody listening as bob: the frame evaporates without killing the
	// connection.
	sendOverSocket(t, alice, "bob", testMessage("alice", "into the void"))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))

	// The connection survives and still works afterwards.
	bob := dialSocket(t, tb, "bob")
	announce(t, bob, "bob")
	time.Sleep(50 * time.Millisecond)
	sendOverSocket(t, alice, "bob", testMessage("alice", "still here"))
	expectDelivery(t, bob)
}
