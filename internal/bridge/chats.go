package bridge

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/model"
)

// Chats returns the current in-memory conversation list.
func (h *Handler) Chats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.convs.Chats())
}

// Messages proxies the message history fetch for one conversation.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	msgs, err := h.api.ListMessages(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// OpenChat selects a conversation for a channel kind: swaps the
// per-conversation broker subscription, zeroes the local unread counter and
// acknowledges the read state to the server.
func (h *Handler) OpenChat(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var req struct {
		Kind model.ThreadKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		req.Kind = model.ThreadKindChat
	}
	if !model.ValidThreadKind(req.Kind) {
		writeError(w, http.StatusBadRequest, "unknown thread kind")
		return
	}

	if prev := h.convs.Selected(req.Kind); prev != 0 && prev != id {
		if err := h.stream.UnsubscribeFromChat(prev); err != nil {
			logger.Errorf("bridge: unsubscribe chat %d: %v", prev, err)
		}
	}
	h.convs.Select(req.Kind, id)
	if err := h.stream.SubscribeToChat(id); err != nil {
		logger.Errorf("bridge: subscribe chat %d: %v", id, err)
	}
	if err := h.api.MarkRead(r.Context(), id); err != nil {
		// Non-fatal: the unread counter is already reset locally.
		logger.Errorf("bridge: mark read chat %d: %v", id, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloseChat clears the selection for a channel kind and drops the
// per-conversation subscription.
func (h *Handler) CloseChat(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var req struct {
		Kind model.ThreadKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		req.Kind = model.ThreadKindChat
	}
	if err := h.stream.UnsubscribeFromChat(id); err != nil {
		logger.Errorf("bridge: unsubscribe chat %d: %v", id, err)
	}
	if h.convs.Selected(req.Kind) == id {
		h.convs.Select(req.Kind, 0)
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content           string            `json:"content"`
	ContentType       model.ContentType `json:"content_type"`
	LocalID           string            `json:"local_id"`
	AISuggestionIndex *int              `json:"ai_suggestion_index"`
	AIEdited          bool              `json:"ai_edited"`
}

// SendMessage posts an operator message and applies the optimistic preview;
// the confirming push event reconciles the summary to server state.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.LocalID == "" {
		req.LocalID = uuid.New().String()
	}
	msg, err := h.api.SendMessage(r.Context(), id, req.Content, req.ContentType, req.LocalID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	h.applyOptimisticPreview(id, msg)
	writeJSON(w, http.StatusCreated, msg)
}

// EditMessage rewrites an operator message.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.api.EditMessage(r.Context(), id, req.Content); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PinMessage / UnpinMessage toggle the pin flag.
func (h *Handler) PinMessage(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

func (h *Handler) UnpinMessage(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *Handler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err := h.api.SetPinned(r.Context(), id, pinned); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateChat applies one mutation (status/priority/assignee/tags/note/
// nickname) optimistically and forwards it to the backend. The confirming
// "chat updated" push event settles the final state.
func (h *Handler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var req struct {
		Status   *model.ChatStatus `json:"status"`
		Priority *model.Priority   `json:"priority"`
		Assignee *int64            `json:"assignee_id"`
		Claim    bool              `json:"claim"`
		Tags     *[]string         `json:"tags"`
		Note     *string           `json:"note"`
		Nickname *string           `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx := r.Context()
	var err error
	switch {
	case req.Status != nil:
		err = h.api.SetStatus(ctx, id, *req.Status)
	case req.Priority != nil:
		err = h.api.SetPriority(ctx, id, *req.Priority)
	case req.Claim:
		err = h.api.Claim(ctx, id)
	case req.Assignee != nil:
		err = h.api.Assign(ctx, id, *req.Assignee)
	case req.Tags != nil:
		err = h.api.SetTags(ctx, id, *req.Tags)
	case req.Note != nil:
		err = h.api.SetNote(ctx, id, *req.Note)
	case req.Nickname != nil:
		err = h.api.SetNickname(ctx, id, *req.Nickname)
	default:
		writeError(w, http.StatusBadRequest, "no mutation in body")
		return
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}
	h.applyOptimisticChatUpdate(id, req.Status, req.Priority, req.Tags, req.Note, req.Nickname)
	w.WriteHeader(http.StatusNoContent)
}

// Typing forwards the operator's typing state to the backend. The composer
// fires this on the first keystroke and again (is_typing=false) after the
// idle window or on send.
func (h *Handler) Typing(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var req struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.api.TypingPing(r.Context(), id, req.IsTyping); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
