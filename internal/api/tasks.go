package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/opconsole/internal/model"
)

// Task boards, quick replies and SLA queries ride the same façade.

func requireID(name string, id int64) error {
	if id <= 0 {
		return validationErrorf("%s id must be a positive integer, got %d", name, id)
	}
	return nil
}

// QuickReplies fetches the operator's canned response templates.
func (c *Client) QuickReplies(ctx context.Context) ([]model.QuickReply, error) {
	var out []model.QuickReply
	if err := c.do(ctx, http.MethodGet, "/api/quick-replies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SLAViolations fetches conversations currently past their response deadline.
func (c *Client) SLAViolations(ctx context.Context) ([]model.SLAViolation, error) {
	var out []model.SLAViolation
	if err := c.do(ctx, http.MethodGet, "/api/sla/violations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Boards fetches all task boards with their columns.
func (c *Client) Boards(ctx context.Context) ([]model.Board, error) {
	var out []model.Board
	if err := c.do(ctx, http.MethodGet, "/api/boards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBoard(ctx context.Context, name string) (*model.Board, error) {
	if name == "" {
		return nil, validationErrorf("board name is empty")
	}
	var board model.Board
	if err := c.do(ctx, http.MethodPost, "/api/boards", map[string]string{"name": name}, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

func (c *Client) DeleteBoard(ctx context.Context, boardID int64) error {
	if err := requireID("board", boardID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/boards/%d", boardID), nil, nil)
}

// Tasks fetches the tasks of one board.
func (c *Client) Tasks(ctx context.Context, boardID int64) ([]model.Task, error) {
	if err := requireID("board", boardID); err != nil {
		return nil, err
	}
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/boards/%d/tasks", boardID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type createTaskRequest struct {
	ColumnID    int64  `json:"column_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ChatID      *int64 `json:"chat_id,omitempty"`
}

func (c *Client) CreateTask(ctx context.Context, boardID, columnID int64, title, description string, chatID *int64) (*model.Task, error) {
	if err := requireID("board", boardID); err != nil {
		return nil, err
	}
	if err := requireID("column", columnID); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, validationErrorf("task title is empty")
	}
	var task model.Task
	req := createTaskRequest{ColumnID: columnID, Title: title, Description: description, ChatID: chatID}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/boards/%d/tasks", boardID), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// MoveTask repositions a task within or across columns.
func (c *Client) MoveTask(ctx context.Context, taskID, columnID int64, position int) error {
	if err := requireID("task", taskID); err != nil {
		return err
	}
	if err := requireID("column", columnID); err != nil {
		return err
	}
	if position < 0 {
		return validationErrorf("task position must not be negative, got %d", position)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d/position", taskID),
		map[string]int64{"column_id": columnID, "position": int64(position)}, nil)
}

func (c *Client) UpdateTask(ctx context.Context, taskID int64, title, description string) error {
	if err := requireID("task", taskID); err != nil {
		return err
	}
	if title == "" {
		return validationErrorf("task title is empty")
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d", taskID),
		map[string]string{"title": title, "description": description}, nil)
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	if err := requireID("task", taskID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", taskID), nil, nil)
}
