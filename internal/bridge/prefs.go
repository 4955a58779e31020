package bridge

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/notify"
)

// Preference keys the renderer may read and write through the bridge.
var allowedPrefs = map[string]struct{}{
	notify.PrefEnabled: {},
	notify.PrefSound:   {},
	notify.PrefDND:     {},
	"send_key":         {},
	"environment_url":  {},
}

func prefKey(r *http.Request) (string, bool) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	_, ok := allowedPrefs[key]
	return key, ok
}

// GetPref returns a stored preference; absent keys come back as empty value,
// the renderer applies its own default.
func (h *Handler) GetPref(w http.ResponseWriter, r *http.Request) {
	key, ok := prefKey(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown preference")
		return
	}
	v, err := h.secrets.GetPreference(r.Context(), key)
	if err != nil {
		logger.Errorf("bridge: read pref %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to read preference")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": v})
}

// SetPref stores a preference value.
func (h *Handler) SetPref(w http.ResponseWriter, r *http.Request) {
	key, ok := prefKey(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown preference")
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.secrets.SetPreference(r.Context(), key, req.Value); err != nil {
		logger.Errorf("bridge: write pref %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to store preference")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe registers a renderer Web Push subscription for banners.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subscription notify.Subscription `json:"subscription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.push.Subscribe(r.Context(), req.Subscription); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe drops a renderer Web Push subscription.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.push.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VAPIDPublic hands the renderer the public key needed to subscribe.
func (h *Handler) VAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublic == "" {
		writeError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(h.vapidPublic))
}
