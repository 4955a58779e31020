package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

// Broker control events.
const (
	EventConnectionEstablished = "connection_established"
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
)

// Conversation events on the broadcast and per-chat channels.
const (
	EventMessageSent = "message_sent"
	EventChatUpdated = "chat_updated"
	EventTyping      = "typing"
)

// legacyEvents maps event names still emitted by older backend versions to
// their current names.
var legacyEvents = map[string]string{
	"message.created":      EventMessageSent,
	"conversation.updated": EventChatUpdated,
	"client-typing":        EventTyping,
}

func canonicalEvent(name string) string {
	if mapped, ok := legacyEvents[name]; ok {
		return mapped
	}
	return name
}

// Envelope is the broker frame: {event, data, channel?}. Data may be a JSON
// object or a JSON-encoded string holding an object (double encoding on the
// server's serializer path).
type Envelope struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	Channel string          `json:"channel,omitempty"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

// fieldAliases maps the camelCase spellings some backend versions emit to the
// canonical snake_case names. Normalization happens once at ingress so the
// handlers only ever see one spelling.
var fieldAliases = map[string]string{
	"chatId":          "chat_id",
	"conversationId":  "chat_id",
	"conversation_id": "chat_id",
	"fromOperator":    "from_operator",
	"isTyping":        "is_typing",
	"userId":          "user_id",
	"displayName":     "display_name",
	"userName":        "display_name",
	"clientName":      "client_name",
	"clientNickname":  "client_nickname",
	"contentType":     "content_type",
	"createdAt":       "created_at",
	"lastMessageAt":   "last_message_at",
	"assigneeId":      "assignee_id",
	"localId":         "local_id",
}

// payloadObject parses an event payload into a field map, unwrapping one
// level of string double-encoding and normalizing field-name aliases.
func payloadObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("unquote payload: %w", err)
		}
		raw = []byte(inner)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	normalizeFields(obj)
	return obj, nil
}

func normalizeFields(obj map[string]json.RawMessage) {
	for alias, canonical := range fieldAliases {
		v, ok := obj[alias]
		if !ok {
			continue
		}
		if _, exists := obj[canonical]; !exists {
			obj[canonical] = v
		}
		delete(obj, alias)
	}
}

// unwrap descends into a nested object (payloads arrive either as the object
// itself or wrapped, e.g. {"message": {...}}).
func unwrap(obj map[string]json.RawMessage, key string) map[string]json.RawMessage {
	raw, ok := obj[key]
	if !ok {
		return obj
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil {
		return obj
	}
	normalizeFields(inner)
	return inner
}

func decodeInto(obj map[string]json.RawMessage, out any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// messagePayload is the normalized body of a "message sent" event.
type messagePayload struct {
	ID           int64             `json:"id"`
	ChatID       int64             `json:"chat_id"`
	FromOperator bool              `json:"from_operator"`
	Content      string            `json:"content"`
	ContentType  model.ContentType `json:"content_type"`
	ClientName   string            `json:"client_name"`
	DisplayName  string            `json:"display_name"`
	LocalID      string            `json:"local_id"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (p *messagePayload) senderName() string {
	if p.ClientName != "" {
		return p.ClientName
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return "Customer"
}

func (p *messagePayload) toModel() *model.Message {
	return &model.Message{
		ID:           p.ID,
		ChatID:       p.ChatID,
		FromOperator: p.FromOperator,
		Content:      p.Content,
		ContentType:  p.ContentType,
		LocalID:      p.LocalID,
		CreatedAt:    p.CreatedAt,
	}
}

// typingPayload is the normalized body of a typing event.
type typingPayload struct {
	ChatID      int64  `json:"chat_id"`
	IsTyping    bool   `json:"is_typing"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// chatPatch extracts the conversation id and a merge patch from a "chat
// updated" payload. Only fields present in the payload enter the patch.
func chatPatch(obj map[string]json.RawMessage) (int64, state.ChatPatch, error) {
	var patch state.ChatPatch

	idRaw, ok := obj["id"]
	if !ok {
		idRaw, ok = obj["chat_id"]
	}
	if !ok {
		return 0, patch, fmt.Errorf("chat payload has no id")
	}
	var id int64
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return 0, patch, fmt.Errorf("chat payload id: %w", err)
	}
	if id <= 0 {
		return 0, patch, fmt.Errorf("chat payload id %d", id)
	}

	if raw, ok := obj["status"]; ok {
		var v model.ChatStatus
		if err := json.Unmarshal(raw, &v); err == nil && model.ValidChatStatus(v) {
			patch.Status = &v
		}
	}
	if raw, ok := obj["priority"]; ok {
		var v model.Priority
		if err := json.Unmarshal(raw, &v); err == nil && model.ValidPriority(v) {
			patch.Priority = &v
		}
	}
	if raw, ok := obj["assignee_id"]; ok {
		var v *int64
		if err := json.Unmarshal(raw, &v); err == nil {
			patch.AssigneeID = v
			patch.AssigneeSet = true
		}
	}
	if raw, ok := obj["client_name"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			patch.ClientName = &v
		}
	}
	if raw, ok := obj["client_nickname"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			patch.Nickname = &v
		}
	}
	if raw, ok := obj["tags"]; ok {
		var v []string
		if err := json.Unmarshal(raw, &v); err == nil {
			patch.Tags = &v
		}
	}
	if raw, ok := obj["note"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			patch.Note = &v
		}
	}
	if raw, ok := obj["last_message_at"]; ok {
		var v time.Time
		if err := json.Unmarshal(raw, &v); err == nil {
			patch.LastMessageAt = &v
		}
	}
	return id, patch, nil
}
