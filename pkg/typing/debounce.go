// Package typing translates raw input activity into rate-limited presence
// signals: one typing=true per burst of activity, typing=false on idle
// expiry, content clear, or send.
package typing

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"parley/pkg/telemetry"
	"parley/pkg/transport"
)

// DefaultIdle is how long input may stay quiet before typing=false fires.
const DefaultIdle = 3 * time.Second

// Debouncer debounces keystrokes into presence signals. Safe for use from
// the input path; sink calls run inline and must be cheap (the production
// sink is fire-and-forget).
type Debouncer struct {
	sink           transport.PresenceSink
	conversationID string
	senderID       func() string
	idle           time.Duration

	// caps typing=true emissions toward the sink; typing=false always
	// passes so the signal can never stick on
	limiter *rate.Limiter

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

// NewDebouncer builds a Debouncer. senderID is consulted per emission so
// signals follow identity reconciliation.
func NewDebouncer(sink transport.PresenceSink, conversationID string, senderID func() string, idle time.Duration) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{
		sink:           sink,
		conversationID: conversationID,
		senderID:       senderID,
		idle:           idle,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// OnInputChanged reports whether the input currently has content. The first
// call with content emits typing=true and arms the idle timer; subsequent
// calls reset the timer without re-emitting. Clearing the content cancels
// the timer and emits typing=false immediately.
func (d *Debouncer) OnInputChanged(hasContent bool) {
	d.mu.Lock()
	if !hasContent {
		if d.active {
			d.stopLocked()
			d.mu.Unlock()
			d.emit(false)
			return
		}
		d.mu.Unlock()
		return
	}

	if d.active {
		d.timer.Reset(d.idle)
		d.mu.Unlock()
		return
	}
	d.active = true
	d.timer = time.AfterFunc(d.idle, d.onExpiry)
	d.mu.Unlock()
	d.emit(true)
}

// OnSend emits typing=false and cancels the timer synchronously, before the
// send's own processing begins.
func (d *Debouncer) OnSend() {
	d.mu.Lock()
	wasActive := d.active
	d.stopLocked()
	d.mu.Unlock()
	if wasActive {
		d.emit(false)
	}
}

// Active reports whether a typing signal is currently on.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debouncer) onExpiry() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()
	d.emit(false)
}

// stopLocked cancels the timer; caller holds d.mu.
func (d *Debouncer) stopLocked() {
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) emit(on bool) {
	if on && !d.limiter.Allow() {
		return
	}
	telemetry.TypingSignal(on)
	d.sink.SetTyping(d.conversationID, d.senderID(), on)
}
