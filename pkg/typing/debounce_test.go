package typing

import (
	"sync"
	"testing"
	"time"
)

type signal struct {
	conversation string
	sender       string
	on           bool
}

type recordingSink struct {
	mu      sync.Mutex
	signals []signal
}

func (r *recordingSink) SetTyping(conversationID, senderID string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal{conversationID, senderID, on})
}

func (r *recordingSink) all() []signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal(nil), r.signals...)
}

func (r *recordingSink) waitLen(t *testing.T, n int) []signal {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.all(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink never reached %d signals: %v", n, r.all())
	return nil
}

func newTestDebouncer(sink *recordingSink, idle time.Duration) *Debouncer {
	return NewDebouncer(sink, "general", func() string { return "s1" }, idle)
}

func TestFirstKeystrokeEmitsTypingTrue(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, time.Hour)

	d.OnInputChanged(true)
	got := sink.all()
	if len(got) != 1 || !got[0].on {
		t.Fatalf("signals = %v, want single true", got)
	}
	if got[0].conversation != "general" || got[0].sender != "s1" {
		t.Fatalf("signal routing = %+v", got[0])
	}
	if !d.Active() {
		t.Fatalf("debouncer not active after content")
	}
}

func TestContinuedTypingDoesNotReEmit(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, time.Hour)

	for i := 0; i < 20; i++ {
		d.OnInputChanged(true)
	}
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("continuous typing emitted %d signals, want 1", len(got))
	}
}

func TestIdleExpiryEmitsTypingFalse(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, 30*time.Millisecond)

	d.OnInputChanged(true)
	got := sink.waitLen(t, 2)
	if got[1].on {
		t.Fatalf("expiry emitted typing=true")
	}
	if d.Active() {
		t.Fatalf("still active after expiry")
	}

	// typing again after expiry starts a fresh burst
	d.OnInputChanged(true)
	got = sink.waitLen(t, 3)
	if !got[2].on {
		t.Fatalf("new burst did not emit typing=true")
	}
}

func TestKeystrokesKeepResettingIdleTimer(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, 60*time.Millisecond)

	d.OnInputChanged(true)
	for i := 0; i < 5; i++ {
		time.Sleep(25 * time.Millisecond)
		d.OnInputChanged(true)
	}
	// 125ms elapsed, more than idle, but never 60ms of quiet
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("timer was not reset by activity: %v", got)
	}
}

func TestClearingInputEmitsFalseImmediately(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, time.Hour)

	d.OnInputChanged(true)
	d.OnInputChanged(false)
	got := sink.all()
	if len(got) != 2 || got[1].on {
		t.Fatalf("signals = %v, want true then false", got)
	}

	// clearing an already empty input emits nothing
	d.OnInputChanged(false)
	if got := sink.all(); len(got) != 2 {
		t.Fatalf("idle clear emitted a signal: %v", got)
	}
}

func TestSendEmitsFalseSynchronously(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, time.Hour)

	d.OnInputChanged(true)
	d.OnSend()
	got := sink.all()
	if len(got) != 2 || got[1].on {
		t.Fatalf("signals = %v, want true then false", got)
	}
	if d.Active() {
		t.Fatalf("still active after send")
	}

	// send with no active burst is a no-op
	d.OnSend()
	if got := sink.all(); len(got) != 2 {
		t.Fatalf("inactive send emitted a signal: %v", got)
	}
}

func TestRateLimitNeverBlocksTypingFalse(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDebouncer(sink, time.Hour)

	// burst far past the limiter; every false must still go out so the
	// signal cannot stick on
	for i := 0; i < 10; i++ {
		d.OnInputChanged(true)
		d.OnSend()
	}
	trues, falses := 0, 0
	for _, s := range sink.all() {
		if s.on {
			trues++
		} else {
			falses++
		}
	}
	if falses != 10 {
		t.Fatalf("typing=false emitted %d times, want 10", falses)
	}
	if trues >= 10 {
		t.Fatalf("limiter never engaged, %d typing=true signals", trues)
	}
}
