//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"estate-chat/domain"
)

// IBackend is the REST surface of the messaging backend.
// Persistence of chat history lives behind it; the client only relies
// on the wire contract (shapes and ordering), never on the store.
type IBackend interface {
	// ListChats returns the caller's conversation snapshots, most
	// recent activity first, without embedded message logs.
	ListChats(ctx context.Context) ([]domain.Conversation, error)
	// GetChat returns one conversation with its full message log.
	GetChat(ctx context.Context, id uuid.UUID) (domain.Conversation, error)
	// CreateChat creates (or returns the existing) conversation
	// between the caller and receiverID.
	CreateChat(ctx context.Context, receiverID string) (domain.Conversation, error)
	// MarkChatRead records the caller in the conversation's seenBy set.
	MarkChatRead(ctx context.Context, id uuid.UUID) error
	// PostMessage persists a message and returns the stored copy,
	// including the server-assigned id and timestamp.
	PostMessage(ctx context.Context, chatID uuid.UUID, text string) (domain.Message, error)
}

// Handler consumes one inbound event payload. Handlers run on the
// channel's delivery goroutine, in receipt order, and must not block.
type Handler func(data json.RawMessage)

// IChannel is the single persistent realtime connection shared by all
// open sessions of an authenticated user. Only the channel may write
// to or close the underlying connection.
type IChannel interface {
	// Connect establishes the connection. Idempotent while the
	// channel is already Connecting or Connected.
	Connect(ctx context.Context)
	// Disconnect releases the connection and suppresses automatic
	// reconnection until the next Connect call.
	Disconnect()
	State() domain.ConnectionState
	// Send emits an event. When the channel is not Connected the
	// frame is dropped, not queued; the caller surfaces this as a
	// non-realtime delivery.
	Send(event string, payload any)
	Subscribe(event string, handler Handler) uuid.UUID
	Unsubscribe(event string, id uuid.UUID)
	// OnStateChange registers a callback fired synchronously with
	// every state transition.
	OnStateChange(fn func(state domain.ConnectionState))
}
