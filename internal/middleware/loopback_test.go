package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opconsole/internal/middleware"
)

func TestLoopbackOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("LoopbackAllowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.RemoteAddr = "127.0.0.1:54321"
		rec := httptest.NewRecorder()
		middleware.LoopbackOnly(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("IPv6LoopbackAllowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.RemoteAddr = "[::1]:54321"
		rec := httptest.NewRecorder()
		middleware.LoopbackOnly(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ExternalRejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.RemoteAddr = "10.1.2.3:54321"
		rec := httptest.NewRecorder()
		middleware.LoopbackOnly(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("SecretHeaderAllowsExternal", func(t *testing.T) {
		t.Setenv("BRIDGE_SECRET", "s3cret")
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.RemoteAddr = "10.1.2.3:54321"
		req.Header.Set("X-Bridge-Secret", "s3cret")
		rec := httptest.NewRecorder()
		middleware.LoopbackOnly(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", middleware.MaskToken(""))
	assert.Equal(t, "****", middleware.MaskToken("abc"))
	assert.Equal(t, "abcd***", middleware.MaskToken("abcdefgh-long-token"))
}
