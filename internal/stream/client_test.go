package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opconsole/internal/config"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

func testBrokerConfig() config.BrokerConfig {
	return config.BrokerConfig{
		Scheme:               "ws",
		Host:                 "localhost",
		Port:                 6001,
		AppKey:               "operator-console",
		BroadcastChannel:     "operators",
		ChatChannelPrefix:    "chat",
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Millisecond,
	}
}

// fakeConn is a scripted transport: the test pushes inbound frames into in and
// inspects everything the client wrote.
type fakeConn struct {
	in chan []byte

	mu     sync.Mutex
	wrote  [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.in:
		return 1, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	f.mu.Lock()
	f.wrote = append(f.wrote, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.wrote))
	for _, raw := range f.wrote {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeConn) push(t *testing.T, event string, data any) {
	t.Helper()
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	require.NoError(t, err)
	f.in <- frame
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	ch    chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan struct{}, 16)}
}

func (n *fakeNotifier) NewMessage(displayName, text string, playImmediately bool) {
	n.mu.Lock()
	n.calls = append(n.calls, displayName+"|"+text)
	n.mu.Unlock()
	n.ch <- struct{}{}
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return ""
	}
	return n.calls[len(n.calls)-1]
}

func TestReconnectDelay(t *testing.T) {
	base := time.Second
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, want[attempt-1], reconnectDelay(attempt, base), "attempt %d", attempt)
	}
	// Out-of-range attempts never produce a zero delay.
	assert.Equal(t, base, reconnectDelay(0, base))
}

func TestConnectRequiresToken(t *testing.T) {
	c := NewClient(testBrokerConfig(), state.NewConversationStore(0), nil)
	assert.Error(t, c.Connect(""))
	assert.Error(t, c.Connect("   "))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectSendsBearerAndSubscribesBroadcast(t *testing.T) {
	conn := newFakeConn()
	var gotURL string
	var gotAuth string
	c := NewClient(testBrokerConfig(), state.NewConversationStore(0), nil)
	c.dial = func(_ context.Context, url string, header http.Header) (Conn, error) {
		gotURL = url
		gotAuth = header.Get("Authorization")
		return conn, nil
	}

	require.NoError(t, c.Connect("tok-123"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "ws://localhost:6001/app/operator-console?protocol=7&client=go&version=1.4.0&flash=false", gotURL)
	assert.Equal(t, "Bearer tok-123", gotAuth)

	conn.push(t, EventConnectionEstablished, nil)
	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, time.Second, 5*time.Millisecond)

	frames := conn.written()
	assert.Equal(t, EventSubscribe, frames[0].Event)
	var sub subscribeData
	require.NoError(t, json.Unmarshal(frames[0].Data, &sub))
	assert.Equal(t, "operators", sub.Channel)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestMessageSentUpdatesStoreAndNotifies(t *testing.T) {
	store := state.NewConversationStore(0)
	store.SetChats([]model.Chat{{ID: 42, Kind: model.ThreadKindChat}})

	conn := newFakeConn()
	notifier := newFakeNotifier()
	c := NewClient(testBrokerConfig(), store, notifier)
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }
	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn.push(t, EventMessageSent, map[string]any{
		"id": 7, "chat_id": 42, "from_operator": false,
		"content": "hello there", "client_name": "Alice",
	})

	select {
	case <-notifier.ch:
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}
	assert.Equal(t, "Alice|hello there", notifier.last())

	chat, ok := store.Chat(42)
	require.True(t, ok)
	assert.Equal(t, 1, chat.Unread)
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, "hello there", chat.LastMessage.Content)
	assert.False(t, chat.LastMessageAt.IsZero())

	ids, list := store.TakeInvalidated()
	assert.Contains(t, ids, int64(42))
	assert.True(t, list)

	c.Disconnect()
}

func TestMessageSentForOpenChatDoesNotIncrementUnread(t *testing.T) {
	store := state.NewConversationStore(0)
	store.SetChats([]model.Chat{{ID: 42, Kind: model.ThreadKindChat}})
	store.Select(model.ThreadKindChat, 42)

	conn := newFakeConn()
	notifier := newFakeNotifier()
	c := NewClient(testBrokerConfig(), store, notifier)
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }
	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn.push(t, EventMessageSent, map[string]any{
		"id": 7, "chat_id": 42, "from_operator": false, "content": "hi",
	})
	<-notifier.ch

	chat, _ := store.Chat(42)
	assert.Equal(t, 0, chat.Unread)

	c.Disconnect()
}

func TestOperatorEchoNeverNotifies(t *testing.T) {
	store := state.NewConversationStore(0)
	store.SetChats([]model.Chat{{ID: 42}})

	conn := newFakeConn()
	notifier := newFakeNotifier()
	c := NewClient(testBrokerConfig(), store, notifier)
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }
	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn.push(t, EventMessageSent, map[string]any{
		"id": 8, "chat_id": 42, "from_operator": true, "content": "our reply",
	})
	require.Eventually(t, func() bool {
		chat, _ := store.Chat(42)
		return chat.LastMessage != nil
	}, time.Second, 5*time.Millisecond)

	chat, _ := store.Chat(42)
	assert.Equal(t, 0, chat.Unread)
	assert.Empty(t, notifier.last())

	c.Disconnect()
}

func TestChatUpdatedMergesPatch(t *testing.T) {
	store := state.NewConversationStore(0)
	store.SetChats([]model.Chat{{ID: 5, Status: model.ChatStatusNew, Note: "keep me"}})

	conn := newFakeConn()
	c := NewClient(testBrokerConfig(), store, nil)
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }
	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	// Two updates for the same conversation: the later one wins.
	conn.push(t, EventChatUpdated, map[string]any{
		"chat": map[string]any{"id": 5, "status": "closed"},
	})
	conn.push(t, EventChatUpdated, map[string]any{
		"chat": map[string]any{"id": 5, "status": "in_progress", "priority": "high"},
	})
	require.Eventually(t, func() bool {
		chat, _ := store.Chat(5)
		return chat.Status == model.ChatStatusInProgress
	}, time.Second, 5*time.Millisecond)

	chat, _ := store.Chat(5)
	assert.Equal(t, model.PriorityHigh, chat.Priority)
	assert.Equal(t, "keep me", chat.Note, "fields absent from the event stay untouched")

	c.Disconnect()
}

func TestMalformedFramesAreDropped(t *testing.T) {
	store := state.NewConversationStore(0)
	store.SetChats([]model.Chat{{ID: 42}})

	conn := newFakeConn()
	c := NewClient(testBrokerConfig(), store, nil)
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }
	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn.in <- []byte("{not json")
	conn.push(t, EventMessageSent, map[string]any{"content": "no chat id"})
	conn.push(t, "some.future.event", map[string]any{"x": 1})

	// A valid event after the garbage still lands.
	conn.push(t, EventMessageSent, map[string]any{"id": 1, "chat_id": 42, "content": "ok"})
	require.Eventually(t, func() bool {
		chat, _ := store.Chat(42)
		return chat.LastMessage != nil && chat.LastMessage.Content == "ok"
	}, time.Second, 5*time.Millisecond)

	c.Disconnect()
}

func TestSubscribeToChat(t *testing.T) {
	conn := newFakeConn()
	c := NewClient(testBrokerConfig(), state.NewConversationStore(0), nil)
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }

	t.Run("InvalidID", func(t *testing.T) {
		assert.Error(t, c.SubscribeToChat(0))
		assert.Error(t, c.SubscribeToChat(-3))
	})

	t.Run("NoopWhenDisconnected", func(t *testing.T) {
		assert.NoError(t, c.SubscribeToChat(42))
		assert.Empty(t, conn.written())
	})

	t.Run("SendsChannelFrame", func(t *testing.T) {
		require.NoError(t, c.Connect("tok"))
		require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

		require.NoError(t, c.SubscribeToChat(42))
		require.NoError(t, c.UnsubscribeFromChat(42))

		frames := conn.written()
		require.Len(t, frames, 2)
		assert.Equal(t, EventSubscribe, frames[0].Event)
		assert.Equal(t, EventUnsubscribe, frames[1].Event)
		var sub subscribeData
		require.NoError(t, json.Unmarshal(frames[0].Data, &sub))
		assert.Equal(t, "chat.42", sub.Channel)

		c.Disconnect()
	})
}

func TestReconnectGivesUpAfterBudget(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.MaxReconnectAttempts = 3
	cfg.ReconnectBaseDelay = time.Millisecond

	var mu sync.Mutex
	dials := 0
	c := NewClient(cfg, state.NewConversationStore(0), nil)
	c.dial = func(context.Context, string, http.Header) (Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("broker down")
	}

	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateGaveUp }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	n := dials
	mu.Unlock()
	assert.Equal(t, 4, n, "initial dial plus three retries")

	// A manual Connect after giving up gets a fresh budget.
	conn := newFakeConn()
	c.dial = func(context.Context, string, http.Header) (Conn, error) { return conn, nil }
	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)
	c.Disconnect()
}

func TestDroppedConnectionReconnects(t *testing.T) {
	cfg := testBrokerConfig()

	first := newFakeConn()
	second := newFakeConn()
	var mu sync.Mutex
	dials := 0
	c := NewClient(cfg, state.NewConversationStore(0), nil)
	c.dial = func(context.Context, string, http.Header) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	}

	require.NoError(t, c.Connect("tok"))
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	// Simulate the broker dropping the transport.
	first.Close()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	c.Disconnect()
}
