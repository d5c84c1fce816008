// Package lifecycle owns the per-message state machine: drafting →
// optimistic → acknowledged or failed. Submit returns the optimistic record
// synchronously; validation, transmission and the reconciliation wait all
// run in background and never gate the caller.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/telemetry"
	"parley/pkg/transport"
)

// DenialHandler is invoked when content validation rejects a submission.
// The record has already been removed from the pending set: from the
// recipients' perspective it never existed.
type DenialHandler func(msg models.Message, res transport.ValidationResult)

// ChangeHandler is invoked whenever the pending set changes in background.
type ChangeHandler func()

// Engine owns the local pending-message set. Other components read derived
// views; only Engine operations mutate the set.
type Engine struct {
	conversationID string
	identityFn     func() models.LocalIdentity
	validator      transport.Validator
	sender         transport.Sender

	mu       sync.Mutex
	pending  []models.Message
	statuses map[string]models.MessageStatus
	onDenied DenialHandler
	onChange ChangeHandler

	now func() time.Time
}

// NewEngine builds an Engine. identityFn is consulted at submit time so
// messages always carry the current session id.
func NewEngine(conversationID string, identityFn func() models.LocalIdentity, validator transport.Validator, sender transport.Sender) *Engine {
	return &Engine{
		conversationID: conversationID,
		identityFn:     identityFn,
		validator:      validator,
		sender:         sender,
		statuses:       make(map[string]models.MessageStatus),
		now:            time.Now,
	}
}

// OnDenied registers the denial handler.
func (e *Engine) OnDenied(fn DenialHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDenied = fn
}

// OnChange registers the background-change handler.
func (e *Engine) OnChange(fn ChangeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// Submit creates the optimistic record and returns it immediately so the
// caller can render before any I/O. The background pipeline then validates,
// transmits and waits for reconciliation.
func (e *Engine) Submit(body string, kind models.MessageKind, replyRef *models.ReplyRef) models.Message {
	if kind == "" {
		kind = models.KindText
	}
	id := e.identityFn()
	m := models.Message{
		ClientID:       uuid.NewString(),
		SenderID:       id.SessionID(),
		SenderName:     id.DisplayName,
		SenderAvatar:   id.AvatarRef,
		Body:           body,
		Kind:           kind,
		ReplyRef:       replyRef,
		CreatedLocalMs: e.now().UnixMilli(),
		Status:         models.StatusOptimistic,
		Origin:         models.OriginOptimistic,
	}

	e.mu.Lock()
	e.pending = append(e.pending, m)
	e.statuses[m.ClientID] = models.StatusOptimistic
	e.mu.Unlock()

	telemetry.MessageSubmitted()
	e.publishPendingState()
	logger.Debug("message_submitted", "client_id", m.ClientID, "kind", string(kind))

	go e.pipeline(m)
	return m
}

// Resubmit retries a failed message as a brand-new submission sharing the
// body and reply reference. The failed record is not touched.
func (e *Engine) Resubmit(failed models.Message) models.Message {
	return e.Submit(failed.Body, failed.Kind, failed.ReplyRef)
}

// pipeline runs the background submission stages for one message.
func (e *Engine) pipeline(m models.Message) {
	ctx := context.Background()

	res, err := e.validator.Validate(ctx, transport.ValidationRequest{
		Body:           m.Body,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		ConversationID: e.conversationID,
	})
	if err != nil {
		// the validator itself failed; moderation outages must not block sends
		logger.Warn("validation_unavailable", "client_id", m.ClientID, "error", err)
		res = transport.ValidationResult{Allowed: true}
	}
	if !res.Allowed {
		e.removeDenied(m, res)
		return
	}

	ack, err := e.sender.Send(ctx, e.conversationID, transport.Outbound{
		ClientID: m.ClientID,
		SenderID: m.SenderID,
		Body:     m.Body,
		Kind:     m.Kind,
		ReplyRef: m.ReplyRef,
	})
	if err != nil {
		e.markFailed(m.ClientID)
		return
	}
	// transmitted; status stays optimistic until the stream echoes the
	// record back and reconciliation matches it by client id
	if ack.AuthoritativeID != "" {
		e.recordAuthoritativeHint(m.ClientID, ack.AuthoritativeID)
	}
}

// removeDenied drops the record from the pending set entirely and surfaces
// the denial. Denied messages are never marked failed.
func (e *Engine) removeDenied(m models.Message, res transport.ValidationResult) {
	e.mu.Lock()
	e.deleteLocked(m.ClientID)
	delete(e.statuses, m.ClientID)
	onDenied, onChange := e.onDenied, e.onChange
	e.mu.Unlock()

	telemetry.MessageDenied()
	logger.Info("message_denied", "client_id", m.ClientID, "reason", res.ReasonCode)
	e.publishPendingState()
	if onDenied != nil {
		onDenied(m, res)
	}
	if onChange != nil {
		onChange()
	}
}

// markFailed flips an optimistic record to failed. The record stays in the
// pending set so the user can see it and retry.
func (e *Engine) markFailed(clientID string) {
	e.mu.Lock()
	for i, p := range e.pending {
		if p.ClientID == clientID && p.Status == models.StatusOptimistic {
			e.pending[i] = p.Failed()
			e.statuses[clientID] = models.StatusFailed
			break
		}
	}
	onChange := e.onChange
	e.mu.Unlock()

	telemetry.MessageFailed()
	logger.Info("message_failed", "client_id", clientID)
	e.publishPendingState()
	if onChange != nil {
		onChange()
	}
}

// recordAuthoritativeHint stores the id returned by the append API without
// changing status.
func (e *Engine) recordAuthoritativeHint(clientID, authoritativeID string) {
	e.mu.Lock()
	for i, p := range e.pending {
		if p.ClientID == clientID {
			p.AuthoritativeID = authoritativeID
			e.pending[i] = p
			break
		}
	}
	e.mu.Unlock()
}

// Acknowledge removes a pending record that reconciliation matched to an
// authoritative one. An acknowledged status never reverts.
func (e *Engine) Acknowledge(clientID string) {
	e.mu.Lock()
	removed := e.deleteLocked(clientID)
	if _, ok := e.statuses[clientID]; ok {
		e.statuses[clientID] = models.StatusAcknowledged
	}
	e.mu.Unlock()

	if removed {
		telemetry.MessageAcknowledged()
		logger.Debug("message_acknowledged", "client_id", clientID)
		e.publishPendingState()
	}
}

// deleteLocked removes clientID from pending; caller holds e.mu.
func (e *Engine) deleteLocked(clientID string) bool {
	for i, p := range e.pending {
		if p.ClientID == clientID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return false
}

// RebindSender replaces the temporary session marker with the provisioned
// session id on every pending record that still references it. Wired to the
// identity bootstrap's reconcile notification.
func (e *Engine) RebindSender(oldSessionID string, id models.LocalIdentity) {
	e.mu.Lock()
	n := 0
	for i, p := range e.pending {
		if p.SenderID == oldSessionID {
			p.SenderID = id.SessionID()
			e.pending[i] = p
			n++
		}
	}
	onChange := e.onChange
	e.mu.Unlock()

	if n > 0 {
		logger.Info("pending_sender_rebound", "count", n, "session", id.SessionID())
		if onChange != nil {
			onChange()
		}
	}
}

// Pending returns a copy of the local pending set in submission order.
func (e *Engine) Pending() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Message(nil), e.pending...)
}

// Status returns the lifecycle status of any message submitted this
// session, including ones no longer in the pending set.
func (e *Engine) Status(clientID string) (models.MessageStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.statuses[clientID]
	return s, ok
}

// publishPendingState pushes pending-set gauges. A transmitted message that
// never reconciles stays visible here rather than being force-failed.
func (e *Engine) publishPendingState() {
	e.mu.Lock()
	count := 0
	var oldest int64
	for _, p := range e.pending {
		if p.Status != models.StatusOptimistic {
			continue
		}
		count++
		if oldest == 0 || p.CreatedLocalMs < oldest {
			oldest = p.CreatedLocalMs
		}
	}
	now := e.now().UnixMilli()
	e.mu.Unlock()

	var age float64
	if oldest > 0 && now > oldest {
		age = float64(now-oldest) / 1000
	}
	telemetry.PendingState(count, age)
}
