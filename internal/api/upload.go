package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/opconsole/internal/model"
)

// UploadAttachment sends a file for a conversation as multipart/form-data.
// size is validated up front so an oversized file never starts uploading.
func (c *Client) UploadAttachment(ctx context.Context, chatID int64, filename string, size int64, r io.Reader) (*model.Message, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, validationErrorf("file name is empty")
	}
	if size <= 0 {
		return nil, validationErrorf("file is empty")
	}
	if size > maxFileSize {
		return nil, validationErrorf("file is larger than %d MB", maxFileSize>>20)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("api: create form file: %w", err)
	}
	if _, err := io.CopyN(part, r, size); err != nil && err != io.EOF {
		return nil, fmt.Errorf("api: read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("api: close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/api/chats/%d/attachments", c.baseURL, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("api: new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token := c.identity.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: upload: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.identity.Logout(ctx)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrAccessDenied
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("api: upload: status %d", resp.StatusCode)
	}

	var msg model.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("api: decode response: %w", err)
	}
	return &msg, nil
}
