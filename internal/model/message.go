package model

import "time"

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
	ContentTypeVideo ContentType = "video"
	ContentTypeAudio ContentType = "audio"
)

// ValidContentType reports whether t is one of the message types the backend accepts.
func ValidContentType(t ContentType) bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeFile, ContentTypeVideo, ContentTypeAudio:
		return true
	}
	return false
}

// Message belongs to exactly one chat. FromOperator distinguishes the two
// authoring sides; only an operator's own text messages may be edited.
type Message struct {
	ID           int64       `json:"id"`
	ChatID       int64       `json:"chat_id"`
	FromOperator bool        `json:"from_operator"`
	Content      string      `json:"content"`
	ContentType  ContentType `json:"content_type"`
	FileURL      string      `json:"file_url,omitempty"`
	FileName     string      `json:"file_name,omitempty"`
	FileSize     int64       `json:"file_size,omitempty"`
	Pinned       bool        `json:"pinned"`
	Seen         bool        `json:"seen"`
	Edited       bool        `json:"edited"`
	EditedAt     *time.Time  `json:"edited_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`

	// LocalID correlates an optimistic send with its server confirmation.
	LocalID string `json:"local_id,omitempty"`

	// AI-suggestion provenance: which suggestion was taken and whether the
	// operator edited the drafted text before sending.
	AISuggestionIndex *int `json:"ai_suggestion_index,omitempty"`
	AIEdited          bool `json:"ai_edited,omitempty"`
}

// SortPinnedFirst reorders msgs so pinned messages come before the rest,
// otherwise preserving the incoming order (stable).
func SortPinnedFirst(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Pinned {
			out = append(out, m)
		}
	}
	for _, m := range msgs {
		if !m.Pinned {
			out = append(out, m)
		}
	}
	return out
}
