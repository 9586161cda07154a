package errors

import "fmt"

var (
	ErrEmptyMessage        = fmt.Errorf("message text is empty")
	ErrSendInFlight        = fmt.Errorf("a send is already in flight")
	ErrNotConnected        = fmt.Errorf("channel is not connected")
	ErrTwoParticipants     = fmt.Errorf("a conversation holds exactly two participants")
	ErrUnknownConversation = fmt.Errorf("unknown conversation")
	ErrCounterpartMissing  = fmt.Errorf("counterpart is not part of the conversation")
	ErrSessionClosed       = fmt.Errorf("session is closed")
	ErrUnauthorized        = fmt.Errorf("missing or invalid bearer token")
)
