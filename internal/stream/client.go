// Package stream maintains the live pub/sub connection to the broker and
// keeps the conversation store eventually consistent with the server. It owns
// reconnection with bounded exponential backoff; event loss during a
// disconnect window is repaired by the poller's full refetch, never by
// replaying individual events.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opconsole/internal/config"
	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/state"
)

// Version is reported to the broker in the handshake query string.
const Version = "1.4.0"

const dialTimeout = 15 * time.Second

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGaveUp:
		return "gave_up"
	}
	return "unknown"
}

// Conn is the subset of *websocket.Conn the client uses; narrowed so tests
// can substitute a transport.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection to the broker endpoint.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

func defaultDialer(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Notifier receives inbound customer messages for sound/banner gating.
type Notifier interface {
	NewMessage(displayName, text string, playImmediately bool)
}

// Client is the reconnecting event-stream client. All state transitions
// happen under mu; transport reads run in a single goroutine per connection.
type Client struct {
	cfg      config.BrokerConfig
	dial     Dialer
	store    *state.ConversationStore
	notifier Notifier

	mu             sync.Mutex
	st             State
	conn           Conn
	connecting     bool
	attempts       int
	token          string
	reconnectTimer *time.Timer
	onState        func(State)

	writeMu sync.Mutex
}

func NewClient(cfg config.BrokerConfig, store *state.ConversationStore, notifier Notifier) *Client {
	return &Client{
		cfg:      cfg,
		dial:     defaultDialer,
		store:    store,
		notifier: notifier,
	}
}

// OnStateChange registers a callback fired after every state transition.
// Must be set before Connect.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Client) setStateLocked(st State) {
	if c.st == st {
		return
	}
	c.st = st
	if c.onState != nil {
		fn, s := c.onState, st
		go fn(s)
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Connect opens the broker connection. A call while a connection attempt is
// in flight or the transport is already open is dropped silently; a blank
// token fails fast. A manual Connect always gets a fresh retry budget.
func (c *Client) Connect(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("stream: connect requires a non-empty token")
	}

	c.mu.Lock()
	if c.connecting || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.token = token
	c.attempts = 0
	c.connecting = true
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.dialAndRun()
	return nil
}

// Disconnect closes the transport if open and resets the retry counter.
// Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connecting = false
	c.attempts = 0
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Client) dialAndRun() {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, err := c.dial(ctx, c.cfg.URL(Version), header)
	cancel()

	if err != nil {
		logger.Errorf("stream: dial: %v", err)
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.st == StateDisconnected {
		// Disconnect raced the dial; drop the fresh connection.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connecting = false
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	logger.Info("stream: connected, awaiting connection acknowledgement")
	c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("stream: read: %v", err)
			}
			break
		}
		c.handleFrame(raw)
	}
	conn.Close()

	c.mu.Lock()
	manual := c.st == StateDisconnected
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if !manual {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the next reconnect attempt, or gives up silently
// once the budget is exhausted. A later manual Connect is always allowed.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == StateDisconnected {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.setStateLocked(StateGaveUp)
		logger.Infof("stream: giving up after %d reconnect attempts", c.attempts)
		return
	}
	c.attempts++
	delay := reconnectDelay(c.attempts, c.cfg.ReconnectBaseDelay)
	c.setStateLocked(StateReconnecting)
	logger.Infof("stream: reconnect attempt %d in %v", c.attempts, delay)
	c.reconnectTimer = time.AfterFunc(delay, c.redial)
}

func (c *Client) redial() {
	c.mu.Lock()
	if c.st != StateReconnecting || c.connecting || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	go c.dialAndRun()
}

// reconnectDelay is base * 2^(attempt-1), uncapped: 1s, 2s, 4s, 8s, 16s for
// the default base.
func reconnectDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << uint(attempt-1)
}

// SubscribeToChat subscribes the per-conversation channel for id. A no-op
// when the transport is not open; a non-positive id is rejected with no side
// effects.
func (c *Client) SubscribeToChat(id int64) error {
	return c.chatControl(EventSubscribe, id)
}

// UnsubscribeFromChat reverses SubscribeToChat. Same no-op semantics.
func (c *Client) UnsubscribeFromChat(id int64) error {
	return c.chatControl(EventUnsubscribe, id)
}

func (c *Client) chatControl(event string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("stream: chat id must be a positive integer, got %d", id)
	}
	c.mu.Lock()
	conn := c.conn
	open := c.st == StateConnected
	c.mu.Unlock()
	if conn == nil || !open {
		return nil
	}
	return c.sendFrame(conn, Envelope{Event: event}, subscribeData{Channel: c.cfg.ChatChannel(id)})
}

func (c *Client) subscribeBroadcast(conn Conn) {
	err := c.sendFrame(conn, Envelope{Event: EventSubscribe}, subscribeData{Channel: c.cfg.BroadcastChannel})
	if err != nil {
		logger.Errorf("stream: subscribe %s: %v", c.cfg.BroadcastChannel, err)
		return
	}
	logger.Infof("stream: subscribed to %s", c.cfg.BroadcastChannel)
}

func (c *Client) sendFrame(conn Conn, env Envelope, data any) error {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("stream: encode frame: %w", err)
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("stream: encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("stream: write frame: %w", err)
	}
	return nil
}
