package bridge

import (
	"time"

	"github.com/opconsole/internal/model"
	"github.com/opconsole/internal/state"
)

// applyOptimisticPreview updates the conversation summary right after a send,
// before the confirming push event arrives.
func (h *Handler) applyOptimisticPreview(chatID int64, msg *model.Message) {
	if msg == nil {
		return
	}
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	zero := 0
	h.convs.UpdateChat(chatID, state.ChatPatch{
		LastMessage:   msg,
		LastMessageAt: &at,
		Unread:        &zero,
	})
}

// applyOptimisticChatUpdate mirrors a successful mutation into the local
// summary; the push event reconciles any divergence (last write wins).
func (h *Handler) applyOptimisticChatUpdate(chatID int64, status *model.ChatStatus, priority *model.Priority, tags *[]string, note, nickname *string) {
	patch := state.ChatPatch{
		Status:   status,
		Priority: priority,
		Tags:     tags,
		Note:     note,
		Nickname: nickname,
	}
	h.convs.UpdateChat(chatID, patch)
}
