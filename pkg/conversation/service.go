// Package conversation composes the sync core for one conversation: the
// message lifecycle engine, reconciliation against the authoritative
// stream, grouping, reply tracking and the typing debouncer. It exposes the
// derived surfaces presentation consumes.
package conversation

import (
	"context"
	"sync"
	"time"

	"parley/pkg/grouping"
	"parley/pkg/identity"
	"parley/pkg/lifecycle"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/reconcile"
	"parley/pkg/replies"
	"parley/pkg/telemetry"
	"parley/pkg/transport"
	"parley/pkg/typing"
)

// SnapshotCache warms the view before the first stream delivery and keeps a
// local copy of the latest authoritative snapshot. May be nil.
type SnapshotCache interface {
	Save(conversationID string, msgs []models.Message) error
	Load(conversationID string) ([]models.Message, error)
}

// Options configure a conversation service.
type Options struct {
	ConversationID string
	GroupGapMs     int64
	TypingIdle     time.Duration
	// Pinned reports the external scroll/auto-follow state: whether the
	// view currently tracks the newest message.
	Pinned func() bool
}

// Service owns one conversation's derived state. Engine-owned state (the
// pending set, the identity record) is only mutated through the owning
// engines; Service reads reconciled views.
type Service struct {
	opts      Options
	bootstrap *identity.Bootstrap
	engine    *lifecycle.Engine
	tracker   *replies.Tracker
	typing    *typing.Debouncer
	stream    transport.Stream
	cache     SnapshotCache

	mu            sync.Mutex
	authoritative []models.Message
	view          models.ConversationView
	unsubscribe   func()
	onUpdate      func()
}

// NewService wires the engines together. The identity bootstrap's
// reconcile notification rebinds pending senders so the temporary marker is
// replaced everywhere it was referenced.
func NewService(opts Options, boot *identity.Bootstrap, validator transport.Validator, sender transport.Sender, stream transport.Stream, sink transport.PresenceSink, cache SnapshotCache) *Service {
	if opts.Pinned == nil {
		opts.Pinned = func() bool { return true }
	}
	s := &Service{opts: opts, bootstrap: boot, stream: stream, cache: cache}

	identityFn := func() models.LocalIdentity {
		id, _ := boot.Current()
		return id
	}
	s.engine = lifecycle.NewEngine(opts.ConversationID, identityFn, validator, sender)
	s.engine.OnChange(s.refresh)
	s.tracker = replies.NewTracker(boot.IsLocalSender, opts.Pinned)
	s.typing = typing.NewDebouncer(sink, opts.ConversationID, func() string {
		return identityFn().SessionID()
	}, opts.TypingIdle)

	boot.OnReconciled(func(old string, id models.LocalIdentity) {
		s.engine.RebindSender(old, id)
	})
	return s
}

// OnUpdate registers the presentation callback invoked after every view
// change. Invoked from background goroutines; keep it cheap.
func (s *Service) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// OnDenied registers the validation-denial handler.
func (s *Service) OnDenied(fn lifecycle.DenialHandler) { s.engine.OnDenied(fn) }

// Open warms the view from the local cache and subscribes to the
// authoritative stream. It returns once the subscription is established.
func (s *Service) Open(ctx context.Context) error {
	if s.cache != nil {
		if cached, err := s.cache.Load(s.opts.ConversationID); err == nil && len(cached) > 0 {
			logger.Info("view_warmed_from_cache", "conversation", s.opts.ConversationID, "count", len(cached))
			s.applySnapshot(cached, false)
		}
	}
	unsub, err := s.stream.Subscribe(ctx, s.opts.ConversationID, func(msgs []models.Message) {
		s.applySnapshot(msgs, true)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()
	return nil
}

// Close cancels the stream subscription.
func (s *Service) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Send cancels any typing signal, submits the message and returns the
// optimistic record for immediate rendering.
func (s *Service) Send(body string, kind models.MessageKind, replyRef *models.ReplyRef) models.Message {
	s.typing.OnSend()
	m := s.engine.Submit(body, kind, replyRef)
	s.refresh()
	return m
}

// Retry resubmits a failed message as a brand-new submission. The failed
// record keeps its status.
func (s *Service) Retry(failed models.Message) models.Message {
	m := s.engine.Resubmit(failed)
	s.refresh()
	return m
}

// OnInputChanged forwards input activity to the typing debouncer.
func (s *Service) OnInputChanged(hasContent bool) { s.typing.OnInputChanged(hasContent) }

// Status re-queries the lifecycle status of a submission.
func (s *Service) Status(clientID string) (models.MessageStatus, bool) { return s.engine.Status(clientID) }

// View returns the current reconciled conversation view.
func (s *Service) View() models.ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(models.ConversationView(nil), s.view...)
}

// Groups derives presentation groups from the current view.
func (s *Service) Groups() []models.MessageGroup {
	return grouping.GroupMessagesGap(s.View(), s.opts.GroupGapMs)
}

// UnreadReplyState returns the reply tracker's current flag.
func (s *Service) UnreadReplyState() replies.UnreadState { return s.tracker.State() }

// AcknowledgeReplies clears the unread-reply flag; called when the consumer
// returns to the latest message.
func (s *Service) AcknowledgeReplies() { s.tracker.Acknowledge() }

// applySnapshot ingests a full authoritative snapshot: retire matched
// pending records, recompute the view, persist the snapshot when it came
// from the stream.
func (s *Service) applySnapshot(msgs []models.Message, fromStream bool) {
	start := time.Now()
	if fromStream && s.cache != nil {
		if err := s.cache.Save(s.opts.ConversationID, msgs); err != nil {
			logger.Warn("snapshot_cache_failed", "conversation", s.opts.ConversationID, "error", err)
		}
	}
	for _, cid := range reconcile.MatchedClientIDs(s.engine.Pending(), msgs) {
		s.engine.Acknowledge(cid)
	}

	s.mu.Lock()
	s.authoritative = msgs
	s.view = reconcile.Reconcile(s.engine.Pending(), msgs)
	view := s.view
	onUpdate := s.onUpdate
	s.mu.Unlock()

	telemetry.ReconcileRun(time.Since(start).Seconds())
	s.tracker.OnViewUpdated(view)
	if onUpdate != nil {
		onUpdate()
	}
}

// refresh recomputes the view against the last authoritative snapshot when
// only the pending set changed.
func (s *Service) refresh() {
	s.mu.Lock()
	s.view = reconcile.Reconcile(s.engine.Pending(), s.authoritative)
	view := s.view
	onUpdate := s.onUpdate
	s.mu.Unlock()

	s.tracker.OnViewUpdated(view)
	if onUpdate != nil {
		onUpdate()
	}
}
