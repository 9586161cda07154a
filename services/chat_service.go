package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"estate-chat/channel"
	"estate-chat/contract"
	"estate-chat/domain"
	"estate-chat/errors"
)

type IChatService interface {
	Start(ctx context.Context)
	Stop()
	Load(ctx context.Context) error
	Conversations() []domain.Conversation
	UnseenCount() int
	ConnectionState() domain.ConnectionState
	Open(ctx context.Context, chatID uuid.UUID) (*ChatSession, error)
	OpenWith(ctx context.Context, otherUserID string) (*ChatSession, error)
	Send(ctx context.Context, text string) (domain.Message, error)
	CloseSession()
}

// ChatService is the top-level chat view: it owns the directory, the
// notification counter and at most one open session, and routes live
// channel events into them. Inbound events arrive sequentially on the
// channel's delivery goroutine; the service's own mutex serializes
// them against user-initiated actions, so no two handlers ever mutate
// directory or session state concurrently.
type ChatService struct {
	userID    string
	backend   contract.IBackend
	channel   contract.IChannel
	directory *ChatDirectory
	counter   *NotificationCounter
	receipts  *ReadReceiptCoordinator
	resolver  *DirectChatResolver
	log       *slog.Logger

	mu      sync.Mutex
	session *ChatSession
	subID   uuid.UUID
}

func NewChatService(userID string, backend contract.IBackend, ch contract.IChannel, log *slog.Logger) *ChatService {
	directory := NewChatDirectory(userID, backend, log)
	counter := NewNotificationCounter()
	return &ChatService{
		userID:    userID,
		backend:   backend,
		channel:   ch,
		directory: directory,
		counter:   counter,
		receipts:  NewReadReceiptCoordinator(userID, backend, directory, counter, log),
		resolver:  NewDirectChatResolver(userID, backend, log),
		log:       log,
	}
}

// Start subscribes to live message delivery and brings the channel up.
func (s *ChatService) Start(ctx context.Context) {
	s.mu.Lock()
	s.subID = s.channel.Subscribe(channel.EventGetMessage, func(data json.RawMessage) {
		s.handleInbound(ctx, data)
	})
	s.mu.Unlock()
	s.channel.Connect(ctx)
}

// Stop tears the chat view down: subscription removed, session and
// directory discarded, connection released.
func (s *ChatService) Stop() {
	s.mu.Lock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	subID := s.subID
	s.mu.Unlock()

	s.channel.Unsubscribe(channel.EventGetMessage, subID)
	s.channel.Disconnect()
	s.directory.Clear()
	s.counter.SetFromSnapshot(0)
}

// Load refreshes the directory snapshot and recomputes the unseen
// tally from it.
func (s *ChatService) Load(ctx context.Context) error {
	if err := s.directory.Load(ctx); err != nil {
		return err
	}
	s.counter.SetFromSnapshot(s.directory.UnseenCount())
	return nil
}

func (s *ChatService) Conversations() []domain.Conversation {
	return s.directory.Conversations()
}

func (s *ChatService) UnseenCount() int {
	return s.counter.Count()
}

func (s *ChatService) ConnectionState() domain.ConnectionState {
	return s.channel.State()
}

// Open fetches the full history of one conversation and makes it the
// open session, replacing any previous one. When the current user has
// not seen the conversation yet, the unseen tally drops by one and a
// single read acknowledgement is issued.
func (s *ChatService) Open(ctx context.Context, chatID uuid.UUID) (*ChatSession, error) {
	conversation, err := s.backend.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	receiverID, err := conversation.Counterpart(s.userID)
	if err != nil {
		return nil, err
	}

	s.receipts.OnOpen(ctx, &conversation)
	session := newChatSession(s.userID, receiverID, conversation,
		s.backend, s.channel, s.receipts, s.log)

	s.mu.Lock()
	if s.session != nil {
		s.session.Close()
	}
	s.session = session
	s.mu.Unlock()
	return session, nil
}

// OpenWith resolves the unique conversation with another user,
// creating it when needed, then opens it. A resolve failure returns
// before anything is opened.
func (s *ChatService) OpenWith(ctx context.Context, otherUserID string) (*ChatSession, error) {
	conversation, err := s.resolver.Resolve(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, conversation.ID)
}

// Send forwards text to the open session. Sends are gated on a
// Connected channel, mirroring the disabled composer of the chat view;
// persistence errors come back untouched so the caller can retry with
// the input intact.
func (s *ChatService) Send(ctx context.Context, text string) (domain.Message, error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return domain.Message{}, errors.ErrSessionClosed
	}
	if s.channel.State() != domain.StateConnected {
		return domain.Message{}, errors.ErrNotConnected
	}
	message, err := session.Send(ctx, text)
	if err != nil {
		return domain.Message{}, err
	}
	s.directory.UpsertFromInbound(message)
	s.directory.MarkSeen(message.ChatID, s.userID)
	return message, nil
}

// CloseSession discards the open session, if any. Late responses for
// it are ignored from here on.
func (s *ChatService) CloseSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
}

// handleInbound routes one live getMessage event. A message for the
// open session is appended and acknowledged; a message for any other
// tracked conversation flips it to unseen and the tally follows the
// directory. Unknown conversations are ignored until the next Load.
func (s *ChatService) handleInbound(ctx context.Context, data json.RawMessage) {
	var message domain.Message
	if err := json.Unmarshal(data, &message); err != nil {
		s.log.Warn("Skipping malformed inbound message", "err", err)
		return
	}
	if message.ID == uuid.Nil || message.ChatID == uuid.Nil {
		s.log.Warn("Skipping inbound message without identifiers")
		return
	}

	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	known := s.directory.UpsertFromInbound(message)

	if session != nil {
		// An open matching session appends, marks the directory entry
		// seen again and acknowledges, all before the recount below.
		session.OnInbound(ctx, message)
	}
	if known {
		s.counter.SetFromSnapshot(s.directory.UnseenCount())
	}
}
