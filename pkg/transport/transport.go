// Package transport defines the collaborator contracts the sync core
// consumes: the authoritative stream, the append API, session provisioning,
// content validation and the presence signal sink. Production
// implementations live in this package; engines depend only on the
// interfaces so tests can substitute fakes.
package transport

import (
	"context"
	"errors"

	"parley/pkg/models"
)

// ErrTransmissionFailed wraps transport-level submission errors so callers
// can distinguish them from validation denials.
var ErrTransmissionFailed = errors.New("transmission failed")

// Outbound is the shape submitted to the backend append API.
type Outbound struct {
	ClientID string             `json:"client_id"`
	SenderID string             `json:"sender_id"`
	Body     string             `json:"body"`
	Kind     models.MessageKind `json:"kind"`
	ReplyRef *models.ReplyRef   `json:"reply_ref,omitempty"`
}

// Ack is the backend's response to a successful append.
type Ack struct {
	AuthoritativeID string `json:"authoritative_id"`
}

// Sender submits a message to the backend append API. The returned Ack may
// carry the authoritative id; acknowledgment still waits for the stream.
type Sender interface {
	Send(ctx context.Context, conversationID string, out Outbound) (Ack, error)
}

// SnapshotHandler receives the full current authoritative message set for
// a conversation. Deliveries are at-least-once, full replacements.
type SnapshotHandler func(msgs []models.Message)

// Stream is the authoritative conversation stream.
type Stream interface {
	Subscribe(ctx context.Context, conversationID string, h SnapshotHandler) (unsubscribe func(), err error)
}

// SessionProvisioner creates (or reuses) a backend session for this device.
type SessionProvisioner interface {
	ProvisionSession(ctx context.Context, preferredName, preferredAvatar string) (sessionID string, err error)
}

// ValidationRequest carries the context a content validator needs.
type ValidationRequest struct {
	Body           string `json:"body"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name,omitempty"`
	ConversationID string `json:"conversation_id"`
}

// ValidationResult is the validator's allow/deny verdict.
type ValidationResult struct {
	Allowed    bool   `json:"allowed"`
	ReasonCode string `json:"reason_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Validator checks message content before transmission. A non-nil error
// means the validator itself failed, not that the content was denied.
type Validator interface {
	Validate(ctx context.Context, req ValidationRequest) (ValidationResult, error)
}

// PresenceSink receives typing signals, fire-and-forget.
type PresenceSink interface {
	SetTyping(conversationID, senderID string, isTyping bool)
}
