package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opconsole/internal/api"
)

func TestWriteAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"Validation", &api.ValidationError{Msg: "message content is empty"}, 400, "message content is empty"},
		{"WrappedValidation", fmt.Errorf("send: %w", &api.ValidationError{Msg: "too long"}), 400, "too long"},
		{"Unauthorized", api.ErrUnauthorized, 401, "session expired"},
		{"AccessDenied", api.ErrAccessDenied, 403, "access denied"},
		{"NotFound", api.ErrNotFound, 404, "not found"},
		{"UnknownBecomesBadGateway", errors.New("connection refused"), 502, "backend unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAPIError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}
