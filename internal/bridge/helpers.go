package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opconsole/internal/api"
	"github.com/opconsole/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAPIError maps façade errors onto the small set of user-facing
// responses the renderer knows how to display.
func writeAPIError(w http.ResponseWriter, err error) {
	var ve *api.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, api.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, api.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, api.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		logger.Errorf("bridge: backend call: %v", err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func paramInt64(r *http.Request, key string) (int64, bool) {
	v := chi.URLParam(r, key)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
