package models

// ConversationView is the reconciled, deduplicated, order-stable message
// sequence handed to presentation. It is derived state, never persisted
// as-is.
type ConversationView []Message

// Last returns the newest entry, or false when the view is empty.
func (v ConversationView) Last() (Message, bool) {
	if len(v) == 0 {
		return Message{}, false
	}
	return v[len(v)-1], true
}

// MessageGroup is a contiguous same-sender run within the grouping time
// window. System messages always form singleton groups.
type MessageGroup struct {
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Messages   []Message `json:"messages"`
}
