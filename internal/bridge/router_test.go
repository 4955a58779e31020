package bridge_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opconsole/internal/api"
	"github.com/opconsole/internal/bridge"
	"github.com/opconsole/internal/config"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/notify"
	"github.com/opconsole/internal/state"
	memstore "github.com/opconsole/internal/storage/memory"
	"github.com/opconsole/internal/stream"
)

type silentNotifier struct{}

func (silentNotifier) NewMessage(string, string, bool) {}

// newTestBridge собирает мост поверх httptest-бэкенда, повторяя проводку
// из services/console.
func newTestBridge(t *testing.T, backend http.Handler) (*httptest.Server, *state.ConversationStore) {
	t.Helper()
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	secrets := memstore.New()
	identity := state.NewIdentityStore(secrets)
	convs := state.NewConversationStore(time.Second)

	streamClient := stream.NewClient(config.BrokerConfig{}, convs, silentNotifier{})
	apiClient := api.NewClient(backendSrv.URL, time.Second, identity, nil)
	push := notify.NewWebPushSender(nil, "", secrets)
	feed := bridge.NewFeed("*")

	h := bridge.NewHandler(&config.Config{}, identity, convs, streamClient, apiClient, secrets, push, feed, "")
	srv := httptest.NewServer(h.Routes("*"))
	t.Cleanup(srv.Close)
	return srv, convs
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestChatOpenCloseFlow(t *testing.T) {
	var readPath string
	srv, convs := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/read") {
			readPath = r.URL.Path
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	convs.SetChats([]model.Chat{{ID: 42, ClientName: "Alice", Unread: 3}})

	t.Run("OpenSelectsAndMarksRead", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/chats/42/open", `{"kind":"chat"}`)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, int64(42), convs.Selected(model.ThreadKindChat))
		assert.Equal(t, "/api/chats/42/read", readPath)
		c, ok := convs.Chat(42)
		require.True(t, ok)
		assert.Zero(t, c.Unread)
	})

	t.Run("CloseClearsSelection", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/chats/42/close", `{"kind":"chat"}`)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Zero(t, convs.Selected(model.ThreadKindChat))
	})

	t.Run("CloseRejectsBadID", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/chats/abc/close", `{"kind":"chat"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("CloseOtherChatKeepsSelection", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/chats/42/open", `{"kind":"chat"}`)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp = postJSON(t, srv.URL+"/api/chats/7/close", `{"kind":"chat"}`)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, int64(42), convs.Selected(model.ThreadKindChat))
	})
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	srv, _ := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	resp := postJSON(t, srv.URL+"/api/chats/42/open", `{"kind":"carrier-pigeon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
