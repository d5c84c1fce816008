package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type backendStub struct {
	mu       sync.Mutex
	status   int
	lastPath string
	lastKey  string
	lastBody []byte
	reply    any
}

func (b *backendStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastPath = r.URL.Path
		b.lastKey = r.Header.Get("X-API-Key")
		var buf [4096]byte
		n, _ := r.Body.Read(buf[:])
		b.lastBody = append([]byte(nil), buf[:n]...)
		status, reply := b.status, b.reply
		b.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}
}

func TestClientSend(t *testing.T) {
	stub := &backendStub{reply: Ack{AuthoritativeID: "srv-1"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "k1", time.Second)
	ack, err := c.Send(context.Background(), "general", Outbound{ClientID: "c1", SenderID: "s1", Body: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ack.AuthoritativeID != "srv-1" {
		t.Fatalf("ack = %+v", ack)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.lastPath != "/v1/conversations/general/messages" {
		t.Fatalf("path = %q", stub.lastPath)
	}
	if stub.lastKey != "k1" {
		t.Fatalf("api key = %q", stub.lastKey)
	}
	var sent Outbound
	if err := json.Unmarshal(stub.lastBody, &sent); err != nil {
		t.Fatalf("request body: %v (%q)", err, stub.lastBody)
	}
	if sent.ClientID != "c1" || sent.Body != "hi" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestClientSendWrapsTransportErrors(t *testing.T) {
	stub := &backendStub{status: http.StatusBadGateway}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Send(context.Background(), "general", Outbound{ClientID: "c1"})
	if !errors.Is(err, ErrTransmissionFailed) {
		t.Fatalf("err = %v, want ErrTransmissionFailed", err)
	}

	// unreachable backend wraps the same way
	dead := NewClient("http://127.0.0.1:1", "", 200*time.Millisecond)
	if _, err := dead.Send(context.Background(), "general", Outbound{ClientID: "c2"}); !errors.Is(err, ErrTransmissionFailed) {
		t.Fatalf("err = %v, want ErrTransmissionFailed", err)
	}
}

func TestClientProvisionSession(t *testing.T) {
	stub := &backendStub{reply: map[string]string{"session_id": "s-77"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	sid, err := c.ProvisionSession(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if sid != "s-77" {
		t.Fatalf("session = %q", sid)
	}

	stub.mu.Lock()
	stub.reply = map[string]string{}
	stub.mu.Unlock()
	if _, err := c.ProvisionSession(context.Background(), "alice", ""); err == nil {
		t.Fatalf("empty session id accepted")
	}
}

func TestClientValidate(t *testing.T) {
	stub := &backendStub{reply: ValidationResult{Allowed: false, ReasonCode: "blocked_term"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	res, err := c.Validate(context.Background(), ValidationRequest{Body: "nope"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Allowed || res.ReasonCode != "blocked_term" {
		t.Fatalf("result = %+v", res)
	}

	// a broken moderation endpoint is an error, not a denial
	stub.mu.Lock()
	stub.status = http.StatusInternalServerError
	stub.mu.Unlock()
	if _, err := c.Validate(context.Background(), ValidationRequest{Body: "anything"}); err == nil {
		t.Fatalf("backend failure reported as a verdict")
	}
}

func TestClientSetTypingNeverPanics(t *testing.T) {
	// fire-and-forget even with no backend at all
	c := NewClient("http://127.0.0.1:1", "", 100*time.Millisecond)
	c.SetTyping("general", "s1", true)
	c.SetTyping("general", "s1", false)
}
