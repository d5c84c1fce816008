package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"parley/pkg/models"
)

func TestNormalizeSnapshot(t *testing.T) {
	in := []models.Message{
		{AuthoritativeID: "m1", Body: "bare wire record"},
		{AuthoritativeID: "m2", Body: "already tagged", Origin: models.OriginAuthoritative, Status: models.StatusAcknowledged},
		{AuthoritativeID: "m3", Body: "bob joined", Origin: models.OriginSystem},
	}
	out := NormalizeSnapshot(in)
	if out[0].Origin != models.OriginAuthoritative || out[0].Status != models.StatusAcknowledged {
		t.Fatalf("bare record not stamped: %+v", out[0])
	}
	if out[1].Origin != models.OriginAuthoritative {
		t.Fatalf("tagged record altered: %+v", out[1])
	}
	if out[2].Origin != models.OriginSystem {
		t.Fatalf("system tag lost: %+v", out[2])
	}
	if out[2].Status == models.StatusAcknowledged {
		t.Fatalf("system record stamped with a lifecycle status: %+v", out[2])
	}
	// input is left untouched
	if in[0].Origin != "" {
		t.Fatalf("normalize mutated its input")
	}
}

func TestWSStreamDeliversSnapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	var gotKey, gotConv string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conv := r.URL.Query().Get("conversation")
		mu.Lock()
		gotKey = r.Header.Get("X-API-Key")
		gotConv = conv
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame := snapshotFrame{
			Conversation: conv,
			Messages: []models.Message{
				{AuthoritativeID: "m1", SenderID: "bob", Body: "hi", CreatedServerMs: 1_000},
			},
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := &WSStream{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey: "k1",
	}
	snapshots := make(chan []models.Message, 1)
	unsub, err := s.Subscribe(t.Context(), "general", func(msgs []models.Message) {
		select {
		case snapshots <- msgs:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	select {
	case msgs := <-snapshots:
		if len(msgs) != 1 || msgs[0].AuthoritativeID != "m1" {
			t.Fatalf("snapshot = %+v", msgs)
		}
		if msgs[0].Status != models.StatusAcknowledged {
			t.Fatalf("snapshot not normalized: %+v", msgs[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if gotKey != "k1" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if gotConv != "general" {
		t.Fatalf("conversation query = %q", gotConv)
	}
}

func TestWSStreamSubscribeFailsFast(t *testing.T) {
	s := &WSStream{URL: "ws://127.0.0.1:1/v1/stream"}
	if _, err := s.Subscribe(t.Context(), "general", func([]models.Message) {}); err == nil {
		t.Fatalf("dial to a dead endpoint succeeded")
	}
}
