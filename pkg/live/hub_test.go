package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish(Event{Type: EventTranscript, CallID: "CA1", Role: "user", Message: "hello"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.CallID != "CA1" || ev.Timestamp.IsZero() {
				t.Errorf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancelA()
	cancelA()
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", h.Subscribers())
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(Event{Type: EventCallStatus, CallID: "CA1"})
	}
	if h.Dropped() != 5 {
		t.Fatalf("dropped = %d, want 5", h.Dropped())
	}
}

func TestServeStreamsJSON(t *testing.T) {
	h := NewHub()
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, zap.NewNop())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Publish(Event{Type: EventSuspicious, CallID: "CA9"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != EventSuspicious || ev.CallID != "CA9" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestUpgraderOrigins(t *testing.T) {
	up := NewUpgrader([]string{"https://admin.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if up.CheckOrigin(req) {
		t.Error("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://admin.example.com")
	if !up.CheckOrigin(req) {
		t.Error("allowed origin rejected")
	}
}
