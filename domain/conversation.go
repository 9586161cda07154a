// Package domain contains core concepts of the direct-messaging system.
// This file defines Conversation entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"estate-chat/errors"
)

// Conversation is a two-party messaging thread between a buyer and a
// listing owner. Participants always hold exactly two user identifiers.
// SeenBy lists the participants who acknowledged the current state.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Participants []string  `json:"participants" validate:"len=2"`
	LastMessage  string    `json:"lastMessage"`
	SeenBy       []string  `json:"seenBy"`
	Messages     []Message `json:"messages,omitempty" validate:"omitempty,dive"`
}

// NewConversation builds a conversation between two distinct users.
func NewConversation(id uuid.UUID, userA, userB string) (Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return Conversation{}, errors.ErrTwoParticipants
	}
	return Conversation{
		ID:           id,
		Participants: []string{userA, userB},
		SeenBy:       []string{},
	}, nil
}

// PairKey normalizes an unordered user pair into a stable key.
// Both (a, b) and (b, a) map to the same key, which is what the
// one-conversation-per-pair uniqueness rule is enforced on.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// HasPair reports whether the conversation is exactly between the
// given unordered user pair.
func (c Conversation) HasPair(a, b string) bool {
	if len(c.Participants) != 2 {
		return false
	}
	return PairKey(c.Participants[0], c.Participants[1]) == PairKey(a, b)
}

// Counterpart returns the other participant of the conversation.
func (c Conversation) Counterpart(userID string) (string, error) {
	if len(c.Participants) != 2 {
		return "", errors.ErrTwoParticipants
	}
	other, found := lo.Find(c.Participants, func(p string) bool { return p != userID })
	if !found || !lo.Contains(c.Participants, userID) {
		return "", errors.ErrCounterpartMissing
	}
	return other, nil
}

// SeenByUser reports whether the user acknowledged the current state.
func (c Conversation) SeenByUser(userID string) bool {
	return lo.Contains(c.SeenBy, userID)
}

// MarkSeen adds the user to the seenBy set. Idempotent.
func (c *Conversation) MarkSeen(userID string) {
	if !c.SeenByUser(userID) {
		c.SeenBy = append(c.SeenBy, userID)
	}
}

// ResetSeen shrinks the seenBy set to the sender alone.
// Called when a new message lands: everyone else becomes unseen.
func (c *Conversation) ResetSeen(senderID string) {
	c.SeenBy = []string{senderID}
}
