// Package api is the façade for the remote console backend. Every call adds
// the bearer token, validates its own primitive arguments before touching the
// network and maps authorization failures to a small set of user-facing
// errors. No retries, no caching: freshness is the poller's job.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

const (
	maxMessageLen = 10000
	maxFileSize   = 50 << 20
)

var (
	// ErrUnauthorized means the session is gone; the identity store has
	// already been cleared by the time a caller sees this.
	ErrUnauthorized = errors.New("session expired")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
)

// ValidationError is raised synchronously, before any network call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, v ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, v...)}
}

type Client struct {
	baseURL  string
	http     *http.Client
	identity *state.IdentityStore

	// onUnauthorized fires after a 401 cleared the credentials, so the UI
	// can navigate to login.
	onUnauthorized func()
}

func NewClient(baseURL string, timeout time.Duration, identity *state.IdentityStore, onUnauthorized func()) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		http:           &http.Client{Timeout: timeout},
		identity:       identity,
		onUnauthorized: onUnauthorized,
	}
}

// do issues one authenticated JSON request. out may be nil for calls whose
// response body is irrelevant.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	defer logger.DeferLogDuration("api "+method+" "+path, time.Now())()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.identity.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// The stored session is dead: clear credentials and force login.
		c.identity.Logout(ctx)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrAccessDenied
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		var er struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&er); decodeErr == nil && er.Error != "" {
			return fmt.Errorf("api: %s %s: %s", method, path, er.Error)
		}
		return fmt.Errorf("api: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func requireChatID(id int64) error {
	if id <= 0 {
		return validationErrorf("chat id must be a positive integer, got %d", id)
	}
	return nil
}

// Me fetches the authenticated operator profile.
func (c *Client) Me(ctx context.Context) (*model.Operator, error) {
	var op model.Operator
	if err := c.do(ctx, http.MethodGet, "/api/operators/me", nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// ListChats fetches all conversation summaries visible to the operator.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat fetches one conversation summary.
func (c *Client) GetChat(ctx context.Context, id int64) (*model.Chat, error) {
	if err := requireChatID(id); err != nil {
		return nil, err
	}
	var chat model.Chat
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d", id), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListMessages fetches the message history of a conversation, pinned first.
func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chatID), nil, &msgs); err != nil {
		return nil, err
	}
	return model.SortPinnedFirst(msgs), nil
}

type sendMessageRequest struct {
	Content           string            `json:"content"`
	ContentType       model.ContentType `json:"content_type"`
	LocalID           string            `json:"local_id,omitempty"`
	AISuggestionIndex *int              `json:"ai_suggestion_index,omitempty"`
	AIEdited          bool              `json:"ai_edited,omitempty"`
}

// SendMessage posts a new operator message. localID correlates the optimistic
// entry with the confirming push event.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content string, contentType model.ContentType, localID string) (*model.Message, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, validationErrorf("message content is empty")
	}
	if len(content) > maxMessageLen {
		return nil, validationErrorf("message is longer than %d characters", maxMessageLen)
	}
	if contentType == "" {
		contentType = model.ContentTypeText
	}
	if !model.ValidContentType(contentType) {
		return nil, validationErrorf("unknown content type %q", contentType)
	}
	var msg model.Message
	req := sendMessageRequest{Content: content, ContentType: contentType, LocalID: localID}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID), req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage rewrites the text of the operator's own message.
func (c *Client) EditMessage(ctx context.Context, messageID int64, content string) error {
	if messageID <= 0 {
		return validationErrorf("message id must be a positive integer, got %d", messageID)
	}
	if content == "" {
		return validationErrorf("message content is empty")
	}
	if len(content) > maxMessageLen {
		return validationErrorf("message is longer than %d characters", maxMessageLen)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/messages/%d", messageID),
		map[string]string{"content": content}, nil)
}

// SetPinned toggles the pin flag of a message.
func (c *Client) SetPinned(ctx context.Context, messageID int64, pinned bool) error {
	if messageID <= 0 {
		return validationErrorf("message id must be a positive integer, got %d", messageID)
	}
	method := http.MethodPost
	if !pinned {
		method = http.MethodDelete
	}
	return c.do(ctx, method, fmt.Sprintf("/api/messages/%d/pin", messageID), nil, nil)
}

// MarkRead acknowledges the conversation as read (server-side unread reset).
func (c *Client) MarkRead(ctx context.Context, chatID int64) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/read", chatID), nil, nil)
}

// SetStatus changes the conversation status (close/reopen/snooze).
func (c *Client) SetStatus(ctx context.Context, chatID int64, status model.ChatStatus) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	if !model.ValidChatStatus(status) {
		return validationErrorf("unknown status %q", status)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/chats/%d/status", chatID),
		map[string]model.ChatStatus{"status": status}, nil)
}

// SetPriority changes the conversation priority.
func (c *Client) SetPriority(ctx context.Context, chatID int64, priority model.Priority) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	if !model.ValidPriority(priority) {
		return validationErrorf("unknown priority %q", priority)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/chats/%d/priority", chatID),
		map[string]model.Priority{"priority": priority}, nil)
}

// Assign hands the conversation to another operator; operatorID 0 unassigns.
func (c *Client) Assign(ctx context.Context, chatID, operatorID int64) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	if operatorID < 0 {
		return validationErrorf("operator id must not be negative, got %d", operatorID)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/chats/%d/assignee", chatID),
		map[string]int64{"operator_id": operatorID}, nil)
}

// Claim assigns the conversation to the calling operator.
func (c *Client) Claim(ctx context.Context, chatID int64) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/claim", chatID), nil, nil)
}

// SetTags replaces the conversation tag set (order preserved server-side).
func (c *Client) SetTags(ctx context.Context, chatID int64, tags []string) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	if tags == nil {
		tags = []string{}
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/chats/%d/tags", chatID),
		map[string][]string{"tags": tags}, nil)
}

// SetNote replaces the free-form operator note.
func (c *Client) SetNote(ctx context.Context, chatID int64, note string) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	if len(note) > maxMessageLen {
		return validationErrorf("note is longer than %d characters", maxMessageLen)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/chats/%d/note", chatID),
		map[string]string{"note": note}, nil)
}

// SetNickname overrides the customer's display name for this conversation.
func (c *Client) SetNickname(ctx context.Context, chatID int64, nickname string) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/chats/%d/nickname", chatID),
		map[string]string{"nickname": nickname}, nil)
}

// TypingPing tells the backend the operator is (or stopped) typing in a chat.
func (c *Client) TypingPing(ctx context.Context, chatID int64, isTyping bool) error {
	if err := requireChatID(chatID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/typing", chatID),
		map[string]bool{"is_typing": isTyping}, nil)
}
