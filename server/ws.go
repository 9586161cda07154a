package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"estate-chat/channel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST layer already authenticated the request; browser
	// origin filtering belongs to the reverse proxy in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSocket upgrades the request and runs the read loop for one
// connection. The bearer token names the owning user, but routing
// only starts once the client announces itself with newUser, matching
// the wire contract.
func (s *Server) handleSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "err", err)
		return
	}

	userID := currentUser(c)
	conn := s.hub.Register(ws)
	defer func() {
		s.hub.Unregister(conn)
		_ = ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := channel.ParseFrame(raw)
		if err != nil {
			s.log.Warn("Skipping malformed frame", "user", userID, "err", err)
			continue
		}
		s.handleFrame(conn, userID, frame)
	}
}

// handleFrame routes one inbound frame.
func (s *Server) handleFrame(c *conn, userID string, frame channel.Frame) {
	switch frame.Event {
	case channel.EventNewUser:
		var announced string
		if err := json.Unmarshal(frame.Data, &announced); err != nil || announced == "" {
			s.log.Warn("Malformed newUser payload", "user", userID)
			return
		}
		if announced != userID {
			// A connection may only announce its own authenticated user.
			s.log.Warn("Presence announcement mismatch", "token", userID, "announced", announced)
			return
		}
		s.hub.Bind(c, announced)

	case channel.EventSendMessage:
		var outbound channel.OutboundMessage
		if err := json.Unmarshal(frame.Data, &outbound); err != nil {
			s.log.Warn("Malformed sendMessage payload", "user", userID, "err", err)
			return
		}
		if outbound.ReceiverID == "" || outbound.Data.SenderID != userID {
			s.log.Warn("Rejecting sendMessage", "user", userID, "receiver", outbound.ReceiverID)
			return
		}
		delivery, err := channel.NewFrame(channel.EventGetMessage, outbound.Data)
		if err != nil {
			s.log.Error("Cannot build delivery frame", "err", err)
			return
		}
		s.hub.Relay(outbound.ReceiverID, delivery)

	default:
		s.log.Debug("Ignoring unknown event", "event", frame.Event, "user", userID)
	}
}
