package state

// ShouldIncrementUnread is the unread-counter policy for an inbound "message
// sent" event: the counter grows only for customer messages arriving while
// the conversation is not on screen. Operator messages (from this or another
// console) and messages for the open conversation reset the counter instead.
func ShouldIncrementUnread(fromOperator bool, chatID, selectedID int64) bool {
	if fromOperator {
		return false
	}
	return chatID != selectedID
}
