package model

import "time"

// Board is a lightweight kanban board of operator tasks.
type Board struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Columns   []BoardColumn `json:"columns,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type BoardColumn struct {
	ID       int64  `json:"id"`
	BoardID  int64  `json:"board_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type Task struct {
	ID          int64      `json:"id"`
	BoardID     int64      `json:"board_id"`
	ColumnID    int64      `json:"column_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Position    int        `json:"position"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	ChatID      *int64     `json:"chat_id,omitempty"` // optional link back to a conversation
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
