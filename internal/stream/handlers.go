package stream

import (
	"encoding/json"
	"time"

	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

// handleFrame classifies one inbound frame and dispatches it. Malformed
// frames and unrecognized events are logged and dropped; nothing here may
// halt processing of subsequent events.
func (c *Client) handleFrame(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Errorf("stream: bad frame: %v", err)
		return
	}

	switch canonicalEvent(env.Event) {
	case EventConnectionEstablished:
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.subscribeBroadcast(conn)
		}
	case EventSubscriptionSucceeded:
		logger.Debugf("stream: subscription succeeded channel=%s", env.Channel)
	case EventMessageSent:
		c.handleMessageSent(env.Data)
	case EventTyping:
		c.handleTyping(env.Data)
	case EventChatUpdated:
		c.handleChatUpdated(env.Data)
	default:
		logger.Debugf("stream: dropping unrecognized event %q", env.Event)
	}
}

func (c *Client) handleMessageSent(data json.RawMessage) {
	obj, err := payloadObject(data)
	if err != nil {
		logger.Errorf("stream: message event: %v", err)
		return
	}
	obj = unwrap(obj, "message")

	var p messagePayload
	if err := decodeInto(obj, &p); err != nil {
		logger.Errorf("stream: message event: %v", err)
		return
	}
	if p.ChatID <= 0 {
		logger.Errorf("stream: message event without chat id, dropping")
		return
	}

	// Stale cached views for this conversation must refetch.
	c.store.InvalidateChat(p.ChatID)
	c.store.InvalidateList()

	at := p.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	c.store.UpdateChat(p.ChatID, state.ChatPatch{
		LastMessage:   p.toModel(),
		LastMessageAt: &at,
	})

	if state.ShouldIncrementUnread(p.FromOperator, p.ChatID, selectedFor(c.store, p.ChatID)) {
		c.store.IncrementUnread(p.ChatID)
	} else {
		c.store.ResetUnread(p.ChatID)
	}

	if !p.FromOperator && c.notifier != nil {
		c.notifier.NewMessage(p.senderName(), p.Content, true)
	}
}

// selectedFor collapses the per-channel-kind selection slots into the single
// id the unread rule compares against: the chat itself if it is open in any
// panel, otherwise whichever conversation is open in the primary panel.
func selectedFor(store *state.ConversationStore, chatID int64) int64 {
	if store.SelectedAny(chatID) {
		return chatID
	}
	return store.Selected(model.ThreadKindChat)
}

func (c *Client) handleTyping(data json.RawMessage) {
	obj, err := payloadObject(data)
	if err != nil {
		logger.Errorf("stream: typing event: %v", err)
		return
	}
	var p typingPayload
	if err := decodeInto(obj, &p); err != nil {
		logger.Errorf("stream: typing event: %v", err)
		return
	}
	if p.ChatID <= 0 {
		logger.Errorf("stream: typing event without chat id, dropping")
		return
	}
	c.store.SetTyping(model.TypingState{
		ChatID:      p.ChatID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		IsTyping:    p.IsTyping,
	})
}

func (c *Client) handleChatUpdated(data json.RawMessage) {
	obj, err := payloadObject(data)
	if err != nil {
		logger.Errorf("stream: chat event: %v", err)
		return
	}
	obj = unwrap(obj, "chat")

	id, patch, err := chatPatch(obj)
	if err != nil {
		logger.Errorf("stream: chat event: %v", err)
		return
	}
	c.store.InvalidateChat(id)
	c.store.UpdateChat(id, patch)
}
