package channel

import (
	"encoding/json"
	"fmt"

	"estate-chat/domain"
)

// Event names of the realtime wire contract.
const (
	// EventNewUser registers the connection's owning user for routing.
	// Sent once per successful connect or reconnect.
	EventNewUser = "newUser"
	// EventSendMessage asks the server to forward a message to the
	// receiver's active connections.
	EventSendMessage = "sendMessage"
	// EventGetMessage delivers a message to the addressed user.
	EventGetMessage = "getMessage"
)

// Frame is the JSON envelope of every realtime event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewFrame wraps a payload into a named frame.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// ParseFrame decodes a raw websocket message into a Frame.
// Unknown fields are ignored; a missing event name is an error so the
// caller can drop the frame instead of dispatching it blindly.
func ParseFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, fmt.Errorf("frame without event name")
	}
	return frame, nil
}

// OutboundMessage is the payload of a sendMessage frame.
type OutboundMessage struct {
	ReceiverID string         `json:"receiverId"`
	Data       domain.Message `json:"data"`
}
