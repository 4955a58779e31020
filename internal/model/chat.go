package model

import "time"

type ChatStatus string

const (
	ChatStatusNew        ChatStatus = "new"
	ChatStatusInProgress ChatStatus = "in_progress"
	ChatStatusClosed     ChatStatus = "closed"
	ChatStatusSnoozed    ChatStatus = "snoozed"
)

// ValidChatStatus reports whether s is one of the statuses the backend accepts.
func ValidChatStatus(s ChatStatus) bool {
	switch s {
	case ChatStatusNew, ChatStatusInProgress, ChatStatusClosed, ChatStatusSnoozed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is one of the priorities the backend accepts.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ThreadKind — originating channel of a conversation. Each kind has its own
// independent selection slot in the conversation store.
type ThreadKind string

const (
	ThreadKindChat    ThreadKind = "chat"
	ThreadKindOrder   ThreadKind = "order"
	ThreadKindProduct ThreadKind = "product"
)

func ValidThreadKind(k ThreadKind) bool {
	switch k {
	case ThreadKindChat, ThreadKindOrder, ThreadKindProduct:
		return true
	}
	return false
}

// Chat is one customer-operator dialogue thread regardless of channel.
// Unread is client-computed and never comes from the server; the rest is
// server-owned and replaced wholesale on refetch.
type Chat struct {
	ID             int64      `json:"id"`
	Kind           ThreadKind `json:"kind,omitempty"`
	Status         ChatStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	AssigneeID     *int64     `json:"assignee_id,omitempty"`
	ClientName     string     `json:"client_name,omitempty"`
	ClientNickname string     `json:"client_nickname,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Note           string     `json:"note,omitempty"`
	LastMessage    *Message   `json:"last_message,omitempty"`
	LastMessageAt  time.Time  `json:"last_message_at"`
	Unread         int        `json:"unread"`
	CreatedAt      time.Time  `json:"created_at"`
}

// QuickReply is a canned response template offered in the composer.
type QuickReply struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// SLAViolation flags a conversation that blew past a response-time deadline.
type SLAViolation struct {
	ChatID     int64     `json:"chat_id"`
	Kind       string    `json:"kind"`
	DeadlineAt time.Time `json:"deadline_at"`
	OverdueBy  int64     `json:"overdue_by_sec"`
}
