// Package bridge — локальный HTTP/WS мост между процессом рендерера и
// агентом консоли. Слушает только loopback: рендерер ходит сюда за
// состоянием и действиями, а живые обновления получает по /ws.
package bridge

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opconsole/internal/api"
	"github.com/opconsole/internal/config"
	"github.com/opconsole/internal/middleware"
	"github.com/opconsole/internal/notify"
	"github.com/opconsole/internal/state"
	"github.com/opconsole/internal/storage"
	"github.com/opconsole/internal/stream"
)

// Handler объединяет все обработчики моста. Каждое поле — живая
// зависимость агента; мост сам ничего не хранит.
type Handler struct {
	cfg      *config.Config
	identity *state.IdentityStore
	convs    *state.ConversationStore
	stream   *stream.Client
	api      *api.Client
	secrets  storage.SecretsStore
	push     *notify.WebPushSender
	feed     *Feed

	vapidPublic string
}

func NewHandler(
	cfg *config.Config,
	identity *state.IdentityStore,
	convs *state.ConversationStore,
	streamClient *stream.Client,
	apiClient *api.Client,
	secrets storage.SecretsStore,
	push *notify.WebPushSender,
	feed *Feed,
	vapidPublic string,
) *Handler {
	return &Handler{
		cfg:         cfg,
		identity:    identity,
		convs:       convs,
		stream:      streamClient,
		api:         apiClient,
		secrets:     secrets,
		push:        push,
		feed:        feed,
		vapidPublic: vapidPublic,
	}
}

// Routes собирает роутер моста.
func (h *Handler) Routes(allowedOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.LoopbackOnly)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Bridge-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/config", h.GetConfig)

	r.Post("/api/session/token", h.SetToken)
	r.Get("/api/session", h.GetSession)
	r.Post("/api/session/logout", h.Logout)

	r.Post("/api/stream/connect", h.ConnectStream)
	r.Post("/api/stream/disconnect", h.DisconnectStream)
	r.Get("/api/stream/state", h.StreamState)

	r.Get("/api/chats", h.Chats)
	r.Get("/api/chats/{id}/messages", h.Messages)
	r.Post("/api/chats/{id}/open", h.OpenChat)
	r.Post("/api/chats/{id}/close", h.CloseChat)
	r.Post("/api/chats/{id}/messages", h.SendMessage)
	r.Post("/api/chats/{id}/upload", h.Upload)
	r.Put("/api/chats/{id}", h.UpdateChat)
	r.Post("/api/chats/{id}/typing", h.Typing)

	r.Put("/api/messages/{id}", h.EditMessage)
	r.Post("/api/messages/{id}/pin", h.PinMessage)
	r.Delete("/api/messages/{id}/pin", h.UnpinMessage)

	r.Get("/api/quick-replies", h.QuickReplies)
	r.Get("/api/sla/violations", h.SLAViolations)
	r.Get("/api/boards", h.Boards)
	r.Post("/api/boards", h.CreateBoard)
	r.Delete("/api/boards/{id}", h.DeleteBoard)
	r.Get("/api/boards/{id}/tasks", h.Tasks)
	r.Post("/api/boards/{id}/tasks", h.CreateTask)
	r.Put("/api/tasks/{id}", h.UpdateTask)
	r.Post("/api/tasks/{id}/move", h.MoveTask)
	r.Delete("/api/tasks/{id}", h.DeleteTask)

	r.Get("/api/prefs/{key}", h.GetPref)
	r.Put("/api/prefs/{key}", h.SetPref)
	r.Post("/api/push/subscribe", h.Subscribe)
	r.Delete("/api/push/subscribe", h.Unsubscribe)
	r.Get("/api/push/vapid", h.VAPIDPublic)

	r.Get("/ws", h.feed.ServeWS)

	return r
}

// GetConfig отдаёт рендереру клиентские параметры: таймауты индикатора набора
// и адрес backend (для прямых ссылок на файлы).
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"api_base_url":     h.cfg.APIBaseURL,
		"typing_sender_ms": h.cfg.Typing.SenderIdle.Milliseconds(),
		"typing_expiry_ms": h.cfg.Typing.ReceiverExpiry.Milliseconds(),
	})
}
