package services

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"estate-chat/contract"
	"estate-chat/domain"
	"estate-chat/errors"
)

// DirectChatResolver finds the existing two-party conversation with a
// user, or creates one. The check-then-create is not atomic from the
// client side: the backend enforces one-conversation-per-pair via its
// unique pair index, and a create response for an already existing
// pair is treated identically to a fresh create.
type DirectChatResolver struct {
	userID  string
	backend contract.IBackend
	log     *slog.Logger
}

func NewDirectChatResolver(userID string, backend contract.IBackend, log *slog.Logger) *DirectChatResolver {
	return &DirectChatResolver{userID: userID, backend: backend, log: log}
}

// Resolve returns the unique conversation between the current user and
// otherUserID, creating it when none exists yet. Calling it twice for
// the same pair yields the same conversation id.
func (r *DirectChatResolver) Resolve(ctx context.Context, otherUserID string) (domain.Conversation, error) {
	if otherUserID == "" || otherUserID == r.userID {
		return domain.Conversation{}, errors.ErrTwoParticipants
	}

	chats, err := r.backend.ListChats(ctx)
	if err != nil {
		return domain.Conversation{}, err
	}

	existing, found := lo.Find(chats, func(c domain.Conversation) bool {
		return c.HasPair(r.userID, otherUserID)
	})
	if found {
		return existing, nil
	}

	r.log.Info("No conversation for pair yet, creating one", "with", otherUserID)
	return r.backend.CreateChat(ctx, otherUserID)
}
