package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"estate-chat/contract"
	"estate-chat/domain"
)

// ChatDirectory owns the authenticated user's conversation collection
// for the lifetime of a session. Entries keep the backend's recency
// order; the directory never re-sorts.
type ChatDirectory struct {
	userID  string
	backend contract.IBackend
	log     *slog.Logger

	mu            sync.Mutex
	conversations []domain.Conversation
}

func NewChatDirectory(userID string, backend contract.IBackend, log *slog.Logger) *ChatDirectory {
	return &ChatDirectory{userID: userID, backend: backend, log: log}
}

// Load fetches the conversation snapshot and replaces the collection.
func (d *ChatDirectory) Load(ctx context.Context) error {
	chats, err := d.backend.ListChats(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.conversations = chats
	d.mu.Unlock()
	return nil
}

// Conversations returns a copy of the collection in backend order.
func (d *ChatDirectory) Conversations() []domain.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Conversation, len(d.conversations))
	copy(out, d.conversations)
	return out
}

// Get returns the conversation with the given id, if tracked.
func (d *ChatDirectory) Get(id uuid.UUID) (domain.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.Find(d.conversations, func(c domain.Conversation) bool { return c.ID == id })
}

// UpsertFromInbound applies a live message to the matching entry:
// preview text is replaced and the seenBy set shrinks to the sender.
// A message for an unknown conversation is ignored; discovering a
// brand-new inbound conversation requires a Load.
func (d *ChatDirectory) UpsertFromInbound(message domain.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].ID == message.ChatID {
			d.conversations[i].LastMessage = message.Text
			d.conversations[i].ResetSeen(message.SenderID)
			return true
		}
	}
	d.log.Debug("Ignoring message for untracked conversation", "chatId", message.ChatID)
	return false
}

// MarkSeen records the user in a tracked conversation's seenBy set.
func (d *ChatDirectory) MarkSeen(id uuid.UUID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].ID == id {
			d.conversations[i].MarkSeen(userID)
			return
		}
	}
}

// UnseenCount is the number of conversations the owning user has not
// acknowledged yet.
func (d *ChatDirectory) UnseenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.CountBy(d.conversations, func(c domain.Conversation) bool {
		return !c.SeenByUser(d.userID)
	})
}

// Clear drops the collection. Called on logout.
func (d *ChatDirectory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations = nil
}
