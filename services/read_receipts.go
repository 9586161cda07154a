package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"estate-chat/contract"
	"estate-chat/domain"
)

// ReadReceiptCoordinator reconciles the local "seen" marker with the
// backend acknowledgement. Per conversation the state machine is
// {Unseen ⇄ Seen}: Unseen when a message arrives while the
// conversation is not open, Seen when it is opened or a message
// arrives while it is open.
//
// Read state is advisory: the local update is optimistic and kept in
// place even when the acknowledgement call fails, which is only
// logged. Retrying is deliberately avoided; a duplicate
// acknowledgement buys nothing.
type ReadReceiptCoordinator struct {
	userID    string
	backend   contract.IBackend
	directory *ChatDirectory
	counter   *NotificationCounter
	log       *slog.Logger
}

func NewReadReceiptCoordinator(userID string, backend contract.IBackend,
	directory *ChatDirectory, counter *NotificationCounter, log *slog.Logger) *ReadReceiptCoordinator {
	return &ReadReceiptCoordinator{
		userID:    userID,
		backend:   backend,
		directory: directory,
		counter:   counter,
		log:       log,
	}
}

// OnOpen runs the unseen-to-seen transition when a conversation
// becomes the open session: one counter decrement, optimistic seenBy
// update, exactly one acknowledgement call. A conversation already
// seen by the user is left untouched.
func (r *ReadReceiptCoordinator) OnOpen(ctx context.Context, conversation *domain.Conversation) {
	if conversation.SeenByUser(r.userID) {
		return
	}
	conversation.MarkSeen(r.userID)
	r.directory.MarkSeen(conversation.ID, r.userID)
	r.counter.Decrease()
	r.acknowledge(ctx, conversation.ID)
}

// OnInboundWhileOpen marks a live message as seen the instant it
// arrives, since the conversation is on screen. The counter is not
// touched: an open conversation never counts as unseen. The session
// updates its own seenBy copy under its lock before calling here.
//
// The local updates are synchronous; the acknowledgement round-trip
// is not. This runs on the channel's delivery goroutine, and a slow
// backend must not stall the frames behind it.
func (r *ReadReceiptCoordinator) OnInboundWhileOpen(ctx context.Context, chatID uuid.UUID) {
	r.directory.MarkSeen(chatID, r.userID)
	go r.acknowledge(ctx, chatID)
}

// acknowledge issues the read-acknowledgement call. Failures are
// swallowed after logging.
func (r *ReadReceiptCoordinator) acknowledge(ctx context.Context, chatID uuid.UUID) {
	if err := r.backend.MarkChatRead(ctx, chatID); err != nil {
		r.log.Error("Read acknowledgement failed", "chatId", chatID, "err", err)
	}
}
