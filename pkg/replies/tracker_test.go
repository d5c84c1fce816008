package replies

import (
	"testing"

	"parley/pkg/models"
)

func isLocalFn(ids ...string) func(string) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(senderID string) bool {
		_, ok := set[senderID]
		return ok
	}
}

func ownMsg(id string) models.Message {
	return models.Message{
		AuthoritativeID: id,
		SenderID:        "me",
		Body:            "mine",
		Origin:          models.OriginAuthoritative,
	}
}

func replyTo(id, authID, from string) models.Message {
	return models.Message{
		AuthoritativeID: authID,
		SenderID:        from,
		SenderName:      from,
		Body:            "a reply",
		ReplyRef:        &models.ReplyRef{AuthoritativeID: id},
		Origin:          models.OriginAuthoritative,
	}
}

func TestReplyWhileNotPinnedFlagsUnread(t *testing.T) {
	tr := NewTracker(isLocalFn("me"), func() bool { return false })

	tr.OnViewUpdated(models.ConversationView{
		ownMsg("m1"),
		replyTo("m1", "m2", "bob"),
	})
	st := tr.State()
	if !st.HasUnread {
		t.Fatalf("reply to own message not flagged")
	}
	if st.FromDisplayName != "bob" {
		t.Fatalf("from = %q", st.FromDisplayName)
	}
}

func TestReplyWhilePinnedIsAlreadyRead(t *testing.T) {
	tr := NewTracker(isLocalFn("me"), func() bool { return true })

	tr.OnViewUpdated(models.ConversationView{
		ownMsg("m1"),
		replyTo("m1", "m2", "bob"),
	})
	if tr.State().HasUnread {
		t.Fatalf("pinned view should never accumulate unread replies")
	}
	if tr.LastReadID() != "m2" {
		t.Fatalf("last read = %q, want m2", tr.LastReadID())
	}
}

func TestReplyToSomeoneElseIsIgnored(t *testing.T) {
	tr := NewTracker(isLocalFn("me"), func() bool { return false })

	tr.OnViewUpdated(models.ConversationView{
		ownMsg("m1"),
		{AuthoritativeID: "x1", SenderID: "carol", Body: "theirs", Origin: models.OriginAuthoritative},
		replyTo("x1", "m2", "bob"),
	})
	if tr.State().HasUnread {
		t.Fatalf("reply to another participant's message was flagged")
	}
}

func TestOwnReplyNeverFlags(t *testing.T) {
	tr := NewTracker(isLocalFn("me"), func() bool { return false })

	reply := replyTo("m1", "m2", "me")
	tr.OnViewUpdated(models.ConversationView{ownMsg("m1"), reply})
	if tr.State().HasUnread {
		t.Fatalf("replying to yourself flagged unread")
	}
}

func TestRepeatedSnapshotsFlagOnlyOnce(t *testing.T) {
	tr := NewTracker(isLocalFn("me"), func() bool { return false })
	view := models.ConversationView{
		ownMsg("m1"),
		replyTo("m1", "m2", "bob"),
	}

	tr.OnViewUpdated(view)
	tr.Acknowledge()
	if tr.State().HasUnread {
		t.Fatalf("acknowledge did not clear the flag")
	}

	// the stream redelivers the same snapshot; the old reply must not
	// re-raise the flag
	tr.OnViewUpdated(view)
	if tr.State().HasUnread {
		t.Fatalf("already seen reply flagged again")
	}

	// a genuinely new reply raises it
	tr.OnViewUpdated(append(view, replyTo("m1", "m3", "carol")))
	st := tr.State()
	if !st.HasUnread || st.FromDisplayName != "carol" {
		t.Fatalf("new reply not flagged: %+v", st)
	}
}

func TestPinnedUpdateClearsPendingUnread(t *testing.T) {
	pinned := false
	tr := NewTracker(isLocalFn("me"), func() bool { return pinned })

	tr.OnViewUpdated(models.ConversationView{
		ownMsg("m1"),
		replyTo("m1", "m2", "bob"),
	})
	if !tr.State().HasUnread {
		t.Fatalf("setup: flag not raised")
	}

	// user scrolled back to the bottom before the next snapshot
	pinned = true
	tr.OnViewUpdated(models.ConversationView{
		ownMsg("m1"),
		replyTo("m1", "m2", "bob"),
	})
	if tr.State().HasUnread {
		t.Fatalf("pinned snapshot should clear the flag")
	}
}

func TestOptimisticRecordsAreInvisibleToTracking(t *testing.T) {
	tr := NewTracker(isLocalFn("me"), func() bool { return false })

	// a reply without an authoritative id cannot be tracked yet
	pendingReply := models.Message{
		ClientID: "c1",
		SenderID: "bob",
		ReplyRef: &models.ReplyRef{AuthoritativeID: "m1"},
		Origin:   models.OriginOptimistic,
	}
	tr.OnViewUpdated(models.ConversationView{ownMsg("m1"), pendingReply})
	if tr.State().HasUnread {
		t.Fatalf("optimistic reply flagged before confirmation")
	}
}
