package state_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

func TestSetChats(t *testing.T) {
	s := state.NewConversationStore(0)

	t.Run("NilBecomesEmptyList", func(t *testing.T) {
		s.SetChats(nil)
		assert.NotNil(t, s.Chats())
		assert.Empty(t, s.Chats())
	})

	t.Run("ReplacesWholesale", func(t *testing.T) {
		s.SetChats([]model.Chat{{ID: 1}, {ID: 2}})
		s.SetChats([]model.Chat{{ID: 3}})
		chats := s.Chats()
		require.Len(t, chats, 1)
		assert.Equal(t, int64(3), chats[0].ID)
	})
}

func TestUpdateChat(t *testing.T) {
	s := state.NewConversationStore(0)
	s.SetChats([]model.Chat{{
		ID:       1,
		Status:   model.ChatStatusNew,
		Priority: model.PriorityNormal,
		Note:     "original",
		Unread:   2,
	}})

	t.Run("MergesOnlyPatchedFields", func(t *testing.T) {
		status := model.ChatStatusInProgress
		s.UpdateChat(1, state.ChatPatch{Status: &status})
		c, ok := s.Chat(1)
		require.True(t, ok)
		assert.Equal(t, model.ChatStatusInProgress, c.Status)
		assert.Equal(t, model.PriorityNormal, c.Priority)
		assert.Equal(t, "original", c.Note)
		assert.Equal(t, 2, c.Unread)
	})

	t.Run("UnassignViaAssigneeSet", func(t *testing.T) {
		op := int64(10)
		s.UpdateChat(1, state.ChatPatch{AssigneeID: &op, AssigneeSet: true})
		c, _ := s.Chat(1)
		require.NotNil(t, c.AssigneeID)

		s.UpdateChat(1, state.ChatPatch{AssigneeID: nil, AssigneeSet: true})
		c, _ = s.Chat(1)
		assert.Nil(t, c.AssigneeID)

		// Without AssigneeSet the field is not in the patch at all.
		s.UpdateChat(1, state.ChatPatch{})
		c, _ = s.Chat(1)
		assert.Nil(t, c.AssigneeID)
	})

	t.Run("UnknownIDIgnored", func(t *testing.T) {
		note := "phantom"
		s.UpdateChat(999, state.ChatPatch{Note: &note})
		assert.Len(t, s.Chats(), 1)
	})
}

func TestUnreadCounters(t *testing.T) {
	s := state.NewConversationStore(0)
	s.SetChats([]model.Chat{{ID: 1}})

	s.IncrementUnread(1)
	s.IncrementUnread(1)
	c, _ := s.Chat(1)
	assert.Equal(t, 2, c.Unread)

	s.ResetUnread(1)
	c, _ = s.Chat(1)
	assert.Equal(t, 0, c.Unread)
}

func TestSelect(t *testing.T) {
	s := state.NewConversationStore(0)
	s.SetChats([]model.Chat{{ID: 1, Unread: 5}})

	s.Select(model.ThreadKindChat, 1)
	c, _ := s.Chat(1)
	assert.Equal(t, 0, c.Unread, "opening a chat clears its unread counter")
	assert.Equal(t, int64(1), s.Selected(model.ThreadKindChat))
	assert.True(t, s.SelectedAny(1))
	assert.False(t, s.SelectedAny(2))

	s.Select(model.ThreadKindChat, 0)
	assert.Equal(t, int64(0), s.Selected(model.ThreadKindChat))
	assert.False(t, s.SelectedAny(1))
}

func TestSelectionPerKind(t *testing.T) {
	s := state.NewConversationStore(0)
	s.SetChats([]model.Chat{{ID: 1}, {ID: 2}})

	s.Select(model.ThreadKindChat, 1)
	s.Select(model.ThreadKindOrder, 2)
	assert.Equal(t, int64(1), s.Selected(model.ThreadKindChat))
	assert.Equal(t, int64(2), s.Selected(model.ThreadKindOrder))
	assert.True(t, s.SelectedAny(2))
}

func TestTypingExpiry(t *testing.T) {
	s := state.NewConversationStore(30 * time.Millisecond)

	s.SetTyping(model.TypingState{ChatID: 1, DisplayName: "Alice", IsTyping: true})
	ts, ok := s.Typing(1)
	require.True(t, ok)
	assert.Equal(t, "Alice", ts.DisplayName)
	assert.False(t, ts.At.IsZero())

	// A lost stop event must not leave the indicator stuck.
	require.Eventually(t, func() bool {
		_, ok := s.Typing(1)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestTypingExplicitStop(t *testing.T) {
	s := state.NewConversationStore(time.Minute)

	s.SetTyping(model.TypingState{ChatID: 1, IsTyping: true})
	s.SetTyping(model.TypingState{ChatID: 1, IsTyping: false})
	_, ok := s.Typing(1)
	assert.False(t, ok)
}

func TestInvalidation(t *testing.T) {
	s := state.NewConversationStore(0)

	ids, list := s.TakeInvalidated()
	assert.Empty(t, ids)
	assert.False(t, list)

	s.InvalidateChat(1)
	s.InvalidateChat(1)
	s.InvalidateChat(2)
	s.InvalidateList()

	ids, list = s.TakeInvalidated()
	assert.ElementsMatch(t, []int64{1, 2}, ids)
	assert.True(t, list)

	ids, list = s.TakeInvalidated()
	assert.Empty(t, ids, "marks are drained on take")
	assert.False(t, list)
}

func TestListener(t *testing.T) {
	s := state.NewConversationStore(0)

	var mu sync.Mutex
	var topics []string
	s.SetListener(func(topic string, chatID int64) {
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
	})

	s.SetChats([]model.Chat{{ID: 1}})
	s.IncrementUnread(1)
	s.Select(model.ThreadKindChat, 1)
	s.SetActiveTab("orders")
	s.SetSidePanel(true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		state.TopicChats, state.TopicChat, state.TopicSelection, state.TopicTab, state.TopicPanel,
	}, topics)
}
