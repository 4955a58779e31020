// Package poller is the consistency backstop for the push channel: a fixed
// 30 s full conversation-list refetch, a 5 s message refetch for the selected
// order/product thread, and immediate refetches for conversations the stream
// client marked stale. Events lost while disconnected surface here.
package poller

import (
	"context"
	"time"

	"github.com/opconsole/internal/api"
	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

// Publisher delivers refetched thread messages to the UI process.
type Publisher interface {
	Publish(topic string, chatID int64, payload any)
}

type Poller struct {
	api   *api.Client
	store *state.ConversationStore
	feed  Publisher

	listInterval   time.Duration
	threadInterval time.Duration

	// kick wakes the loop early when invalidation marks are pending.
	kick chan struct{}
}

func New(client *api.Client, store *state.ConversationStore, feed Publisher, listInterval, threadInterval time.Duration) *Poller {
	return &Poller{
		api:            client,
		store:          store,
		feed:           feed,
		listInterval:   listInterval,
		threadInterval: threadInterval,
		kick:           make(chan struct{}, 1),
	}
}

// Kick requests an early pass over pending invalidation marks.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	listTicker := time.NewTicker(p.listInterval)
	defer listTicker.Stop()
	threadTicker := time.NewTicker(p.threadInterval)
	defer threadTicker.Stop()

	// Initial fill without waiting a full interval.
	p.refetchList(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-listTicker.C:
			p.refetchList(ctx)
		case <-threadTicker.C:
			p.refetchThreads(ctx)
		case <-p.kick:
			p.refetchInvalidated(ctx)
		}
	}
}

// refetchList replaces the whole conversation list. Unread counters are
// client-computed, so they are carried over from the entries being replaced
// before the wholesale SetChats.
func (p *Poller) refetchList(ctx context.Context) {
	defer logger.DeferLogDuration("poller.refetchList", time.Now())()
	chats, err := p.api.ListChats(ctx)
	if err != nil {
		logger.Errorf("poller: list chats: %v", err)
		return
	}
	p.store.SetChats(carryOverUnread(p.store.Chats(), chats))
}

// carryOverUnread preserves the client-computed unread counters across a
// wholesale list replacement.
func carryOverUnread(old, fresh []model.Chat) []model.Chat {
	if len(old) == 0 {
		return fresh
	}
	unread := make(map[int64]int, len(old))
	for _, c := range old {
		if c.Unread > 0 {
			unread[c.ID] = c.Unread
		}
	}
	for i := range fresh {
		if n, ok := unread[fresh[i].ID]; ok {
			fresh[i].Unread = n
		}
	}
	return fresh
}

// refetchThreads refreshes the message list of the selected order and
// product threads (those views have no per-chat push channel of their own).
func (p *Poller) refetchThreads(ctx context.Context) {
	for _, kind := range []model.ThreadKind{model.ThreadKindOrder, model.ThreadKindProduct} {
		id := p.store.Selected(kind)
		if id == 0 {
			continue
		}
		msgs, err := p.api.ListMessages(ctx, id)
		if err != nil {
			logger.Errorf("poller: thread %d messages: %v", id, err)
			continue
		}
		if p.feed != nil {
			p.feed.Publish("messages", id, msgs)
		}
	}
}

// refetchInvalidated re-reads summaries the stream client marked stale.
func (p *Poller) refetchInvalidated(ctx context.Context) {
	chatIDs, list := p.store.TakeInvalidated()
	if list {
		p.refetchList(ctx)
		return
	}
	for _, id := range chatIDs {
		chat, err := p.api.GetChat(ctx, id)
		if err != nil {
			logger.Errorf("poller: refetch chat %d: %v", id, err)
			continue
		}
		p.store.UpdateChat(id, state.ChatPatch{
			Status:        &chat.Status,
			Priority:      &chat.Priority,
			AssigneeID:    chat.AssigneeID,
			AssigneeSet:   true,
			ClientName:    &chat.ClientName,
			Nickname:      &chat.ClientNickname,
			Tags:          &chat.Tags,
			Note:          &chat.Note,
			LastMessage:   chat.LastMessage,
			LastMessageAt: &chat.LastMessageAt,
		})
	}
}
