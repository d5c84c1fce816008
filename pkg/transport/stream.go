package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// snapshotFrame is what the stream endpoint pushes on every change: the
// complete current message set for the conversation, not a diff.
type snapshotFrame struct {
	Conversation string           `json:"conversation"`
	Messages     []models.Message `json:"messages"`
}

// WSStream subscribes to the authoritative conversation stream over a
// websocket. Deliveries are at-least-once; the connection is re-dialed with
// backoff until the subscription is cancelled.
type WSStream struct {
	URL    string // e.g. wss://host/v1/stream
	APIKey string

	// Dialer is overridable for tests; nil uses the package default.
	Dialer *websocket.Dialer
}

const (
	streamBackoffMin = time.Second
	streamBackoffMax = 30 * time.Second
)

// Subscribe dials the stream for conversationID and invokes h with every
// snapshot. The first dial is synchronous so configuration errors surface
// to the caller; later reconnects happen in background.
func (s *WSStream) Subscribe(ctx context.Context, conversationID string, h SnapshotHandler) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := s.dial(ctx, conversationID)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.run(ctx, conversationID, conn, h)
	return cancel, nil
}

func (s *WSStream) dial(ctx context.Context, conversationID string) (*websocket.Conn, error) {
	d := s.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	hdr := http.Header{}
	if s.APIKey != "" {
		hdr.Set("X-API-Key", s.APIKey)
	}
	url := s.URL + "?conversation=" + conversationID
	conn, _, err := d.DialContext(ctx, url, hdr)
	if err != nil {
		return nil, err
	}
	logger.Info("stream_connected", "conversation", conversationID)
	return conn, nil
}

// run reads snapshot frames until ctx is done, re-dialing on errors.
func (s *WSStream) run(ctx context.Context, conversationID string, conn *websocket.Conn, h SnapshotHandler) {
	backoff := streamBackoffMin
	for {
		if conn != nil {
			if err := s.readLoop(ctx, conn, h); err != nil && ctx.Err() == nil {
				logger.Warn("stream_read_failed", "conversation", conversationID, "error", err)
			}
			conn.Close()
			conn = nil
		}
		if ctx.Err() != nil {
			logger.Info("stream_closed", "conversation", conversationID)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("stream_closed", "conversation", conversationID)
			return
		case <-time.After(backoff):
		}
		var err error
		conn, err = s.dial(ctx, conversationID)
		if err != nil {
			if backoff < streamBackoffMax {
				backoff *= 2
			}
			continue
		}
		backoff = streamBackoffMin
	}
}

func (s *WSStream) readLoop(ctx context.Context, conn *websocket.Conn, h SnapshotHandler) error {
	// unblock ReadJSON when the subscription is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		var frame snapshotFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		h(NormalizeSnapshot(frame.Messages))
	}
}

// NormalizeSnapshot stamps stream records as authoritative/acknowledged
// when the wire omits those fields. System records keep their tag.
func NormalizeSnapshot(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		if m.Origin == "" {
			m.Origin = models.OriginAuthoritative
		}
		if m.Origin == models.OriginAuthoritative && m.Status == "" {
			m.Status = models.StatusAcknowledged
		}
		out[i] = m
	}
	return out
}
