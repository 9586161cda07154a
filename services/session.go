package services

import (
	"context"
	"log/slog"
	"sync"

	"estate-chat/channel"
	"estate-chat/contract"
	"estate-chat/domain"
	"estate-chat/errors"
)

// ChatSession is one open conversation: its ordered message log, read
// markers and send/receive logic. History is fetched on open and
// discarded on close, never cached across opens.
type ChatSession struct {
	userID     string
	receiverID string
	backend    contract.IBackend
	channel    contract.IChannel
	receipts   *ReadReceiptCoordinator
	log        *slog.Logger

	mu           sync.Mutex
	conversation domain.Conversation
	sending      bool
	closed       bool
}

// newChatSession wires an already fetched conversation into a live
// session. The caller (the facade) resolved the counterpart and ran
// the open read-receipt transition beforehand.
func newChatSession(userID, receiverID string, conversation domain.Conversation,
	backend contract.IBackend, ch contract.IChannel,
	receipts *ReadReceiptCoordinator, log *slog.Logger) *ChatSession {
	return &ChatSession{
		userID:       userID,
		receiverID:   receiverID,
		backend:      backend,
		channel:      ch,
		receipts:     receipts,
		log:          log,
		conversation: conversation,
	}
}

// Conversation returns a copy of the session's conversation state.
func (s *ChatSession) Conversation() domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Messages returns a copy of the ordered message log.
func (s *ChatSession) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.conversation.Messages))
	copy(out, s.conversation.Messages)
	return out
}

func (s *ChatSession) ReceiverID() string {
	return s.receiverID
}

// Send persists the text, appends the authoritative server-returned
// message to the local log, then emits it over the channel for the
// counterpart. The local log is only mutated after persistence
// succeeds: a failed persist leaves no local trace and the caller may
// retry. A second Send while one is in flight is rejected to keep the
// append order deterministic.
func (s *ChatSession) Send(ctx context.Context, text string) (domain.Message, error) {
	cleaned, err := domain.CleanText(text)
	if err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Message{}, errors.ErrSessionClosed
	}
	if s.sending {
		s.mu.Unlock()
		return domain.Message{}, errors.ErrSendInFlight
	}
	s.sending = true
	chatID := s.conversation.ID
	s.mu.Unlock()

	message, err := s.backend.PostMessage(ctx, chatID, cleaned)

	s.mu.Lock()
	s.sending = false
	if err != nil {
		s.mu.Unlock()
		return domain.Message{}, err
	}
	if s.closed {
		// Late persist result for a disposed session: the message is
		// stored server-side but must not mutate local state anymore.
		s.mu.Unlock()
		return message, nil
	}
	s.conversation.Messages = append(s.conversation.Messages, message)
	s.conversation.LastMessage = message.Text
	s.conversation.ResetSeen(s.userID)
	s.mu.Unlock()

	s.channel.Send(channel.EventSendMessage, channel.OutboundMessage{
		ReceiverID: s.receiverID,
		Data:       message,
	})
	return message, nil
}

// OnInbound appends a live message addressed to this conversation and
// immediately fires a read acknowledgement, since an open conversation
// is seen the instant a message arrives. Messages for other
// conversations, and messages arriving after Close, report false.
func (s *ChatSession) OnInbound(ctx context.Context, message domain.Message) bool {
	s.mu.Lock()
	if s.closed || message.ChatID != s.conversation.ID {
		s.mu.Unlock()
		return false
	}
	s.conversation.Messages = append(s.conversation.Messages, message)
	s.conversation.LastMessage = message.Text
	s.conversation.ResetSeen(message.SenderID)
	s.conversation.MarkSeen(s.userID)
	chatID := s.conversation.ID
	s.mu.Unlock()

	s.receipts.OnInboundWhileOpen(ctx, chatID)
	return true
}

// Close discards the in-memory log. Responses arriving afterwards are
// ignored instead of mutating a disposed session.
func (s *ChatSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.conversation.Messages = nil
}

func (s *ChatSession) snapshot() domain.Conversation {
	conv := s.conversation
	conv.Messages = make([]domain.Message, len(s.conversation.Messages))
	copy(conv.Messages, s.conversation.Messages)
	conv.SeenBy = append([]string(nil), s.conversation.SeenBy...)
	return conv
}
