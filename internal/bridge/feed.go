package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opconsole/internal/logger"
)

const feedWriteWait = 10 * time.Second

// FeedEvent is one frame on the renderer event feed.
type FeedEvent struct {
	Event   string `json:"event"`
	ChatID  int64  `json:"chat_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Feed pushes store changes, refetched thread messages and play-sound
// commands to the renderer over a WebSocket. Usually one connection; a
// detached window may open a second.
type Feed struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}

	// writeMu serializes fan-out: Publish is called from the store listener,
	// the poller and the stream state callback concurrently.
	writeMu sync.Mutex
}

func NewFeed(allowedOrigin string) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// renderer goes away.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("feed: upgrade: %v", err)
		return
	}
	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.mu.Unlock()
	logger.Info("feed: renderer connected")

	// Drain control frames; exit (and drop the conn) on any read error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.drop(conn)
				return
			}
		}
	}()
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	_, ok := f.conns[conn]
	delete(f.conns, conn)
	f.mu.Unlock()
	if ok {
		conn.Close()
		logger.Info("feed: renderer disconnected")
	}
}

// Publish fans the event out to every connected renderer. Slow or dead
// connections are dropped, never waited on.
func (f *Feed) Publish(event string, chatID int64, payload any) {
	frame, err := json.Marshal(FeedEvent{Event: event, ChatID: chatID, Payload: payload})
	if err != nil {
		logger.Errorf("feed: encode %s: %v", event, err)
		return
	}

	f.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	for _, conn := range targets {
		conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			f.drop(conn)
		}
	}
}

// Play implements notify.Player: the renderer owns the audio element, the
// agent only commands it. Reports an error when no renderer is connected so
// the notifier's retry path can kick in after a reconnect.
func (f *Feed) Play() error {
	f.mu.Lock()
	n := len(f.conns)
	f.mu.Unlock()
	if n == 0 {
		return errors.New("feed: no renderer connected")
	}
	f.Publish("play_sound", 0, nil)
	return nil
}
