// Package grouping derives presentation groups from the reconciled view:
// contiguous same-sender runs within a bounded time gap. It is independent
// of transport concerns and operates on the view alone.
package grouping

import "parley/pkg/models"

// DefaultGapMs is the largest gap between consecutive messages that still
// joins them into one group.
const DefaultGapMs int64 = 120_000

// GroupMessages groups the view with the default time window.
func GroupMessages(view models.ConversationView) []models.MessageGroup {
	return GroupMessagesGap(view, DefaultGapMs)
}

// GroupMessagesGap groups the view in a single pass. A message joins the
// open group iff the group is non-empty, senders match, and the gap from
// the group's most recent message is within gapMs. System messages always
// form singleton groups and break any run in progress: the next message
// starts a new group even when its sender matches the run before the
// system message.
func GroupMessagesGap(view models.ConversationView, gapMs int64) []models.MessageGroup {
	if gapMs <= 0 {
		gapMs = DefaultGapMs
	}
	var groups []models.MessageGroup
	var open *models.MessageGroup

	flush := func() {
		if open != nil {
			groups = append(groups, *open)
			open = nil
		}
	}

	for _, m := range view {
		if m.System() {
			flush()
			groups = append(groups, singleton(m))
			continue
		}
		if open != nil && open.SenderID == m.SenderID {
			last := open.Messages[len(open.Messages)-1]
			if gap(last, m) <= gapMs {
				open.Messages = append(open.Messages, m)
				continue
			}
		}
		flush()
		g := singleton(m)
		open = &g
	}
	flush()
	return groups
}

func singleton(m models.Message) models.MessageGroup {
	return models.MessageGroup{
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Messages:   []models.Message{m},
	}
}

// gap returns the time between two consecutive messages. Server timestamps
// are used when present; either side without one falls back to its local
// creation time.
func gap(last, m models.Message) int64 {
	return m.OrderKey() - last.OrderKey()
}
