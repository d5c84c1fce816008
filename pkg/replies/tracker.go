// Package replies tracks which authoritative messages reply to the local
// participant's own messages, and whether such a reply is still unseen.
package replies

import (
	"sync"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// UnreadState is the presentation-facing unread-reply flag.
type UnreadState struct {
	HasUnread       bool
	FromDisplayName string
}

// Tracker watches reconciled views for replies to locally authored
// messages. The unread flag is cleared only by the consumer explicitly
// acknowledging it or by the view already being pinned to the latest
// message; there is no timer-based auto-clear.
type Tracker struct {
	isLocal func(senderID string) bool
	pinned  func() bool

	mu         sync.Mutex
	own        map[string]struct{}
	seen       map[string]struct{}
	hasUnread  bool
	fromName   string
	lastReadID string
}

// NewTracker builds a Tracker. isLocal decides whether a sender id belongs
// to this device; pinned reports the external scroll/auto-follow state.
func NewTracker(isLocal func(senderID string) bool, pinned func() bool) *Tracker {
	return &Tracker{
		isLocal: isLocal,
		pinned:  pinned,
		own:     make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
}

// OnViewUpdated scans the reconciled view. It first learns the
// authoritative ids of locally authored messages, then flags replies to
// them from other senders.
func (t *Tracker) OnViewUpdated(view models.ConversationView) {
	pinned := t.pinned()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range view {
		if m.AuthoritativeID != "" && t.isLocal(m.SenderID) {
			t.own[m.AuthoritativeID] = struct{}{}
		}
	}

	for _, m := range view {
		if m.AuthoritativeID == "" || m.ReplyRef == nil || t.isLocal(m.SenderID) {
			continue
		}
		if _, mine := t.own[m.ReplyRef.AuthoritativeID]; !mine {
			continue
		}
		if _, old := t.seen[m.AuthoritativeID]; old {
			continue
		}
		t.seen[m.AuthoritativeID] = struct{}{}
		if !pinned {
			t.hasUnread = true
			t.fromName = m.SenderName
			logger.Debug("unread_reply", "from", m.SenderName, "id", m.AuthoritativeID)
		}
	}

	if pinned {
		t.hasUnread = false
		t.fromName = ""
		if last, ok := view.Last(); ok && last.AuthoritativeID != "" {
			t.lastReadID = last.AuthoritativeID
		}
	}
}

// Acknowledge clears the unread flag; called when the consumer returns to
// the latest message.
func (t *Tracker) Acknowledge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasUnread = false
	t.fromName = ""
}

// State returns the current unread-reply state.
func (t *Tracker) State() UnreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return UnreadState{HasUnread: t.hasUnread, FromDisplayName: t.fromName}
}

// LastReadID returns the id of the newest message seen while pinned.
func (t *Tracker) LastReadID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastReadID
}
