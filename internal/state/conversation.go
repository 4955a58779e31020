package state

import (
	"sync"
	"time"

	"github.com/opconsole/internal/model"
)

// Change topics delivered to the store listener (consumed by the bridge feed).
const (
	TopicChats     = "chats"
	TopicChat      = "chat"
	TopicTyping    = "typing"
	TopicSelection = "selection"
	TopicPanel     = "panel"
	TopicTab       = "tab"
)

// Listener is notified after every store mutation. chatID is 0 for changes
// not scoped to a single conversation.
type Listener func(topic string, chatID int64)

// ChatPatch is a partial update merged into a chat summary by ID. Nil fields
// are left untouched; last write wins, no further conflict resolution.
type ChatPatch struct {
	Status        *model.ChatStatus
	Priority      *model.Priority
	AssigneeID    *int64
	AssigneeSet   bool // distinguishes "unassign" (nil) from "not in patch"
	ClientName    *string
	Nickname      *string
	Tags          *[]string
	Note          *string
	LastMessage   *model.Message
	LastMessageAt *time.Time
	Unread        *int
}

// ConversationStore is the mutable client-side view of all loaded
// conversations plus UI selection state. It is written by the event stream
// client, the poller and bridge handlers; last write wins, the server-side
// state is authoritative and periodically refetched.
type ConversationStore struct {
	mu        sync.RWMutex
	chats     []model.Chat
	selected  map[model.ThreadKind]int64
	activeTab string
	sidePanel bool

	typing       map[int64]model.TypingState
	typingTimers map[int64]*time.Timer
	typingExpiry time.Duration

	// dirty marks conversations whose cached message/summary views are stale
	// and need a refetch; consumed by the poller.
	dirty     map[int64]struct{}
	listDirty bool

	listener Listener
}

func NewConversationStore(typingExpiry time.Duration) *ConversationStore {
	return &ConversationStore{
		selected:     make(map[model.ThreadKind]int64),
		typing:       make(map[int64]model.TypingState),
		typingTimers: make(map[int64]*time.Timer),
		typingExpiry: typingExpiry,
	}
}

// SetListener registers the single change listener. Must be called before the
// stream client or poller start writing.
func (s *ConversationStore) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

func (s *ConversationStore) notify(topic string, chatID int64) {
	if s.listener != nil {
		s.listener(topic, chatID)
	}
}

// SetChats replaces the whole list (after a full refetch). Non-slice input at
// the bridge boundary is already coerced to nil; nil becomes an empty list.
func (s *ConversationStore) SetChats(chats []model.Chat) {
	if chats == nil {
		chats = []model.Chat{}
	}
	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()
	s.notify(TopicChats, 0)
}

// Chats returns a copy of the current list.
func (s *ConversationStore) Chats() []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Chat returns the summary for id, if loaded.
func (s *ConversationStore) Chat(id int64) (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.ID == id {
			return c, true
		}
	}
	return model.Chat{}, false
}

// UpdateChat merges patch into the chat with the given id. Unknown ids are
// ignored: the next full refetch will bring the entry in.
func (s *ConversationStore) UpdateChat(id int64, patch ChatPatch) {
	s.mu.Lock()
	found := false
	for i := range s.chats {
		if s.chats[i].ID != id {
			continue
		}
		applyPatch(&s.chats[i], patch)
		found = true
		break
	}
	s.mu.Unlock()
	if found {
		s.notify(TopicChat, id)
	}
}

func applyPatch(c *model.Chat, p ChatPatch) {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.AssigneeSet {
		c.AssigneeID = p.AssigneeID
	}
	if p.ClientName != nil {
		c.ClientName = *p.ClientName
	}
	if p.Nickname != nil {
		c.ClientNickname = *p.Nickname
	}
	if p.Tags != nil {
		c.Tags = *p.Tags
	}
	if p.Note != nil {
		c.Note = *p.Note
	}
	if p.LastMessage != nil {
		c.LastMessage = p.LastMessage
	}
	if p.LastMessageAt != nil {
		c.LastMessageAt = *p.LastMessageAt
	}
	if p.Unread != nil {
		c.Unread = *p.Unread
	}
}

// IncrementUnread bumps the unread counter for id by one.
func (s *ConversationStore) IncrementUnread(id int64) {
	s.mu.Lock()
	for i := range s.chats {
		if s.chats[i].ID == id {
			s.chats[i].Unread++
			break
		}
	}
	s.mu.Unlock()
	s.notify(TopicChat, id)
}

// ResetUnread zeroes the unread counter for id.
func (s *ConversationStore) ResetUnread(id int64) {
	s.mu.Lock()
	for i := range s.chats {
		if s.chats[i].ID == id {
			s.chats[i].Unread = 0
			break
		}
	}
	s.mu.Unlock()
	s.notify(TopicChat, id)
}

// Select marks id as the open conversation for the given channel kind and
// zeroes its unread counter (the server-side acknowledgement is the caller's
// job). id 0 clears the selection.
func (s *ConversationStore) Select(kind model.ThreadKind, id int64) {
	s.mu.Lock()
	s.selected[kind] = id
	if id != 0 {
		for i := range s.chats {
			if s.chats[i].ID == id {
				s.chats[i].Unread = 0
				break
			}
		}
	}
	s.mu.Unlock()
	s.notify(TopicSelection, id)
}

// Selected returns the open conversation id for kind (0 if none).
func (s *ConversationStore) Selected(kind model.ThreadKind) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[kind]
}

// SelectedAny reports whether id is the open conversation in any channel kind.
// The unread rule cares about "is this chat on screen", not which panel.
func (s *ConversationStore) SelectedAny(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sel := range s.selected {
		if sel != 0 && sel == id {
			return true
		}
	}
	return false
}

func (s *ConversationStore) SetActiveTab(tab string) {
	s.mu.Lock()
	s.activeTab = tab
	s.mu.Unlock()
	s.notify(TopicTab, 0)
}

func (s *ConversationStore) ActiveTab() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTab
}

func (s *ConversationStore) SetSidePanel(visible bool) {
	s.mu.Lock()
	s.sidePanel = visible
	s.mu.Unlock()
	s.notify(TopicPanel, 0)
}

func (s *ConversationStore) SidePanel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sidePanel
}

// SetTyping updates the ephemeral typing indicator for ts.ChatID. A typing
// mark self-expires after the configured window: the sender's explicit stop
// event is the normal path, the timer covers a crashed sender or a dropped
// frame.
func (s *ConversationStore) SetTyping(ts model.TypingState) {
	s.mu.Lock()
	if t, ok := s.typingTimers[ts.ChatID]; ok {
		t.Stop()
		delete(s.typingTimers, ts.ChatID)
	}
	if ts.IsTyping {
		ts.At = time.Now()
		s.typing[ts.ChatID] = ts
		if s.typingExpiry > 0 {
			id := ts.ChatID
			s.typingTimers[id] = time.AfterFunc(s.typingExpiry, func() {
				s.expireTyping(id)
			})
		}
	} else {
		delete(s.typing, ts.ChatID)
	}
	s.mu.Unlock()
	s.notify(TopicTyping, ts.ChatID)
}

func (s *ConversationStore) expireTyping(chatID int64) {
	s.mu.Lock()
	_, ok := s.typing[chatID]
	if ok {
		delete(s.typing, chatID)
		delete(s.typingTimers, chatID)
	}
	s.mu.Unlock()
	if ok {
		s.notify(TopicTyping, chatID)
	}
}

// Typing returns the indicator for chatID, if set.
func (s *ConversationStore) Typing(chatID int64) (model.TypingState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.typing[chatID]
	return ts, ok
}

// InvalidateChat marks chatID's cached views stale (dependent views refetch).
func (s *ConversationStore) InvalidateChat(chatID int64) {
	s.mu.Lock()
	if s.dirty == nil {
		s.dirty = make(map[int64]struct{})
	}
	s.dirty[chatID] = struct{}{}
	s.mu.Unlock()
}

// InvalidateList marks the whole conversation list stale.
func (s *ConversationStore) InvalidateList() {
	s.mu.Lock()
	s.listDirty = true
	s.mu.Unlock()
}

// TakeInvalidated drains and returns the pending invalidation marks.
func (s *ConversationStore) TakeInvalidated() (chatIDs []int64, list bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.dirty {
		chatIDs = append(chatIDs, id)
	}
	s.dirty = nil
	list = s.listDirty
	s.listDirty = false
	return chatIDs, list
}
