package bridge

import (
	"net/http"
)

// Upload принимает файл из формы рендерера и проксирует его в backend.
// Форма: multipart/form-data, поле "file".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	msg, err := h.api.UploadAttachment(r.Context(), id, header.Filename, header.Size, file)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	h.applyOptimisticPreview(id, msg)
	writeJSON(w, http.StatusCreated, msg)
}
