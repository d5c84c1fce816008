package models

// MessageStatus tracks a message through the local lifecycle.
type MessageStatus string

const (
	StatusOptimistic   MessageStatus = "optimistic"
	StatusAcknowledged MessageStatus = "acknowledged"
	StatusFailed       MessageStatus = "failed"
)

// Origin tags where a message record came from. Optimistic records are
// local-only until reconciliation matches them; system records never join
// groups and are rendered standalone.
type Origin string

const (
	OriginOptimistic    Origin = "optimistic"
	OriginAuthoritative Origin = "authoritative"
	OriginSystem        Origin = "system"
)

// MessageKind distinguishes plain text from media payloads.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindMedia MessageKind = "media"
)

// ReplyRef points at another message's authoritative id plus a denormalized
// snippet so the reply header renders without a second lookup.
type ReplyRef struct {
	AuthoritativeID string `json:"authoritative_id"`
	SenderName      string `json:"sender_name,omitempty"`
	Snippet         string `json:"snippet,omitempty"`
}

type Message struct {
	// ClientID is the client-generated correlation id, unique per
	// submission attempt. Reconciliation matches on it and nothing else.
	ClientID string `json:"client_id"`
	// AuthoritativeID is set once the backend confirms persistence.
	AuthoritativeID string `json:"authoritative_id,omitempty"`

	SenderID     string `json:"sender_id"`
	SenderName   string `json:"sender_name,omitempty"`
	SenderAvatar string `json:"sender_avatar,omitempty"`

	Body     string      `json:"body"`
	Kind     MessageKind `json:"kind"`
	ReplyRef *ReplyRef   `json:"reply_ref,omitempty"`

	// CreatedLocalMs is the client clock at creation, used for ordering
	// until an authoritative timestamp exists.
	CreatedLocalMs  int64 `json:"created_local_ms"`
	CreatedServerMs int64 `json:"created_server_ms,omitempty"`

	Status     MessageStatus `json:"status"`
	RetryCount int           `json:"retry_count,omitempty"`
	Origin     Origin        `json:"origin"`
}

// OrderKey returns the ordering timestamp: authoritative time when present,
// local creation time otherwise.
func (m Message) OrderKey() int64 {
	if m.CreatedServerMs > 0 {
		return m.CreatedServerMs
	}
	return m.CreatedLocalMs
}

// System reports whether the message is a standalone system record.
func (m Message) System() bool { return m.Origin == OriginSystem }

// Acknowledged returns a new snapshot with the authoritative identity
// adopted. Lifecycle transitions never mutate in place; callers replace the
// old record with the returned one.
func (m Message) Acknowledged(authoritativeID string, serverMs int64) Message {
	out := m
	out.AuthoritativeID = authoritativeID
	out.CreatedServerMs = serverMs
	out.Status = StatusAcknowledged
	out.Origin = OriginAuthoritative
	return out
}

// Failed returns a new snapshot marked as failed. RetryCount is left
// untouched; a retry is a fresh submission, not a mutation of this record.
func (m Message) Failed() Message {
	out := m
	out.Status = StatusFailed
	return out
}
