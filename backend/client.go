// Package backend implements the REST client of the messaging backend.
// Payloads are parsed into explicit schemas and validated at this
// boundary; malformed responses surface as errors instead of being
// accessed optimistically.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"estate-chat/domain"
)

const defaultTimeout = 10 * time.Second

// Client talks to the chat REST endpoints with a bearer token.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	log      *slog.Logger
	validate *validator.Validate
}

func NewClient(baseURL, token string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
		log:      log,
		validate: validator.New(),
	}
}

// ListChats fetches the caller's conversation snapshots in backend
// order (most recent activity first). The client never re-sorts.
func (c *Client) ListChats(ctx context.Context) ([]domain.Conversation, error) {
	var chats []domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	for _, chat := range chats {
		if err := c.validate.Struct(chat); err != nil {
			return nil, fmt.Errorf("invalid conversation %s: %w", chat.ID, err)
		}
	}
	return chats, nil
}

// GetChat fetches one conversation with its full message log.
func (c *Client) GetChat(ctx context.Context, id uuid.UUID) (domain.Conversation, error) {
	var chat domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/chats/"+id.String(), nil, &chat); err != nil {
		return domain.Conversation{}, err
	}
	if err := c.validate.Struct(chat); err != nil {
		return domain.Conversation{}, fmt.Errorf("invalid conversation %s: %w", id, err)
	}
	return chat, nil
}

// CreateChat creates or returns the conversation between the caller
// and receiverID. The backend owns the one-conversation-per-pair rule,
// so an existing record is as good as a fresh one here.
func (c *Client) CreateChat(ctx context.Context, receiverID string) (domain.Conversation, error) {
	body := map[string]string{"receiverId": receiverID}
	var chat domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats", body, &chat); err != nil {
		return domain.Conversation{}, err
	}
	if err := c.validate.Struct(chat); err != nil {
		return domain.Conversation{}, fmt.Errorf("invalid created conversation: %w", err)
	}
	return chat, nil
}

// MarkChatRead records the caller in the conversation's seenBy set.
// No meaningful response body is expected.
func (c *Client) MarkChatRead(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPut, "/chats/read/"+id.String(), nil, nil)
}

// PostMessage persists one message and returns the stored copy with
// the server-assigned id and timestamp.
func (c *Client) PostMessage(ctx context.Context, chatID uuid.UUID, text string) (domain.Message, error) {
	body := map[string]string{"text": text}
	var message domain.Message
	if err := c.do(ctx, http.MethodPost, "/messages/"+chatID.String(), body, &message); err != nil {
		return domain.Message{}, err
	}
	if err := c.validate.Struct(message); err != nil {
		return domain.Message{}, fmt.Errorf("invalid stored message: %w", err)
	}
	return message, nil
}

// do performs one JSON round-trip against the backend.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
