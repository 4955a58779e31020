package bridge

import (
	"encoding/json"
	"net/http"
)

// Task boards, quick replies and SLA views are plain passthroughs to the
// backend; the agent holds no task state.

func (h *Handler) QuickReplies(w http.ResponseWriter, r *http.Request) {
	out, err := h.api.QuickReplies(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SLAViolations(w http.ResponseWriter, r *http.Request) {
	out, err := h.api.SLAViolations(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Boards(w http.ResponseWriter, r *http.Request) {
	out, err := h.api.Boards(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	board, err := h.api.CreateBoard(r.Context(), req.Name)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

func (h *Handler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid board id")
		return
	}
	if err := h.api.DeleteBoard(r.Context(), id); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid board id")
		return
	}
	out, err := h.api.Tasks(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid board id")
		return
	}
	var req struct {
		ColumnID    int64  `json:"column_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		ChatID      *int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	task, err := h.api.CreateTask(r.Context(), id, req.ColumnID, req.Title, req.Description, req.ChatID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.api.UpdateTask(r.Context(), id, req.Title, req.Description); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MoveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req struct {
		ColumnID int64 `json:"column_id"`
		Position int   `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.api.MoveTask(r.Context(), id, req.ColumnID, req.Position); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err := h.api.DeleteTask(r.Context(), id); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
