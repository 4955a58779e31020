package bridge

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/middleware"
)

// SetToken stores the bearer token handed over by the login screen and makes
// it the session credential (the keychain path of the desktop shell).
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}
	if err := h.identity.SetToken(r.Context(), req.Token); err != nil {
		logger.Errorf("bridge: store token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store token")
		return
	}
	logger.Infof("bridge: token stored (%s)", middleware.MaskToken(req.Token))

	// Профиль оператора нужен сразу после входа; ошибка не фатальна.
	if op, err := h.api.Me(r.Context()); err != nil {
		logger.Errorf("bridge: fetch profile: %v", err)
	} else {
		h.identity.SetUser(op)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession reports whether a credential is present, without revealing it.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": h.identity.Token() != "",
		"loading":       h.identity.Loading(),
		"user":          h.identity.User(),
	})
}

// Logout clears the stored credential, tears down the stream and tells the
// renderer to navigate to login.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.stream.Disconnect()
	h.identity.Logout(r.Context())
	h.feed.Publish("logout", 0, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ConnectStream (re)opens the broker connection with the stored credential.
// Called on login and on app focus after the retry budget ran out.
func (h *Handler) ConnectStream(w http.ResponseWriter, r *http.Request) {
	token := h.identity.Token()
	if token == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.stream.Connect(token); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.stream.State().String()})
}

// DisconnectStream closes the broker connection.
func (h *Handler) DisconnectStream(w http.ResponseWriter, r *http.Request) {
	h.stream.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}

// StreamState returns the connection state for the live indicator.
func (h *Handler) StreamState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": h.stream.State().String()})
}
