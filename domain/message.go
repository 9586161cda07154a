// Package domain contains core concepts of the direct-messaging system.
// This file defines Message entities and their ordering rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"estate-chat/errors"
)

// Message represents one immutable chat entry.
// Field names follow the wire contract of the messaging backend.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chatId"`
	SenderID  string    `json:"userId" validate:"required"`
	Text      string    `json:"text" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// Before reports whether m precedes other in the conversation log.
// Total order: creation timestamp first, message ID as tie-breaker.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return strings.Compare(m.ID.String(), other.ID.String()) < 0
}

// CleanText trims outgoing text and rejects empty or
// whitespace-only input before any network call happens.
func CleanText(text string) (string, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return "", errors.ErrEmptyMessage
	}
	return cleaned, nil
}
