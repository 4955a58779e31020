package model

import "time"

// Operator is the authenticated console user.
type Operator struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TypingState is the ephemeral per-chat typing indicator. It is never
// persisted; the receiving side expires it locally if the stop event is lost.
type TypingState struct {
	ChatID      int64     `json:"chat_id"`
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsTyping    bool      `json:"is_typing"`
	At          time.Time `json:"at"`
}
