package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opconsole/internal/api"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
	memstore "github.com/opconsole/internal/storage/memory"
)

func newIdentity(t *testing.T, token string) *state.IdentityStore {
	t.Helper()
	identity := state.NewIdentityStore(memstore.New())
	if token != "" {
		require.NoError(t, identity.SetToken(context.Background(), token))
	}
	return identity
}

func TestBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]model.Chat{})
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, time.Second, newIdentity(t, "tok-xyz"), nil)
	_, err := c.ListChats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-xyz", gotAuth)
}

func TestListChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats", r.URL.Path)
		json.NewEncoder(w).Encode([]model.Chat{{ID: 1, ClientName: "Alice"}, {ID: 2}})
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, time.Second, newIdentity(t, "tok"), nil)
	chats, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "Alice", chats[0].ClientName)
}

func TestListMessagesPinnedFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Message{
			{ID: 1, Content: "old"},
			{ID: 2, Content: "pinned", Pinned: true},
			{ID: 3, Content: "new"},
		})
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, time.Second, newIdentity(t, "tok"), nil)
	msgs, err := c.ListMessages(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Pinned)
	assert.Equal(t, int64(1), msgs[1].ID, "relative order of unpinned messages survives")
	assert.Equal(t, int64(3), msgs[2].ID)
}

func TestUnauthorizedClearsSessionAndFiresCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	identity := newIdentity(t, "stale-token")
	fired := false
	c := api.NewClient(srv.URL, time.Second, identity, func() { fired = true })

	_, err := c.ListChats(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.True(t, fired)
	assert.Empty(t, identity.Token())
}

func TestErrorMapping(t *testing.T) {
	status := http.StatusForbidden
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, time.Second, newIdentity(t, "tok"), nil)

	_, err := c.GetChat(context.Background(), 1)
	assert.ErrorIs(t, err, api.ErrAccessDenied)

	status = http.StatusNotFound
	_, err = c.GetChat(context.Background(), 1)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestServerErrorBodyPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "chat is closed"})
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, time.Second, newIdentity(t, "tok"), nil)
	_, err := c.SendMessage(context.Background(), 1, "hi", model.ContentTypeText, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat is closed")
}

func TestSendMessageValidation(t *testing.T) {
	// No server: validation errors must be raised before any network call.
	c := api.NewClient("http://127.0.0.1:1", time.Second, newIdentity(t, "tok"), nil)
	ctx := context.Background()

	var vErr *api.ValidationError

	_, err := c.SendMessage(ctx, 0, "hi", model.ContentTypeText, "")
	assert.ErrorAs(t, err, &vErr)

	_, err = c.SendMessage(ctx, 1, "", model.ContentTypeText, "")
	assert.ErrorAs(t, err, &vErr)

	_, err = c.SendMessage(ctx, 1, strings.Repeat("a", 10001), model.ContentTypeText, "")
	assert.ErrorAs(t, err, &vErr)

	_, err = c.SendMessage(ctx, 1, "hi", model.ContentType("hologram"), "")
	assert.ErrorAs(t, err, &vErr)
}

func TestSendMessageDefaultsToText(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(model.Message{ID: 5, ChatID: 1, Content: "hi"})
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, time.Second, newIdentity(t, "tok"), nil)
	msg, err := c.SendMessage(context.Background(), 1, "hi", "", "local-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.ID)
	assert.Equal(t, "text", gotBody["content_type"])
	assert.Equal(t, "local-1", gotBody["local_id"])
}

func TestSetStatusValidation(t *testing.T) {
	c := api.NewClient("http://127.0.0.1:1", time.Second, newIdentity(t, "tok"), nil)
	var vErr *api.ValidationError
	err := c.SetStatus(context.Background(), 1, model.ChatStatus("vaporized"))
	assert.ErrorAs(t, err, &vErr)
}
