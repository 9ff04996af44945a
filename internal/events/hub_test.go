package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func dialHub(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	waitFor(t, func() bool { return hub.Subscribers(sessionID) == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub([]string{"*"})
	conn := dialHub(t, hub, "s-1")

	hub.Publish(Event{Type: "purchase", SessionID: "s-1", Payload: map[string]int{"property_id": 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "purchase" || got.SessionID != "s-1" {
		t.Errorf("unexpected event %+v", got)
	}
	if got.At.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestHub_PublishOtherSessionIgnored(t *testing.T) {
	hub := NewHub([]string{"*"})
	conn := dialHub(t, hub, "s-1")

	hub.Publish(Event{Type: "purchase", SessionID: "s-2"})
	hub.Publish(Event{Type: "advance", SessionID: "s-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "advance" {
		t.Errorf("expected advance event, got %q", got.Type)
	}
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewHub([]string{"*"})
	conn := dialHub(t, hub, "s-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, _, err := conn.Read(ctx)
		errc <- err
	}()

	hub.Close("s-1")

	if n := hub.Subscribers("s-1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	if err := <-errc; websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("expected normal closure, got %v", err)
	}
}

func TestHub_CloseWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	hub.Close("missing")
	hub.Publish(Event{Type: "noop", SessionID: "missing"})
}

func TestHub_ReplaysHistoryToLateSubscriber(t *testing.T) {
	hub := NewHub([]string{"*"})
	hub.Publish(Event{Type: "started", SessionID: "s-1"})
	hub.Publish(Event{Type: "viewed", SessionID: "s-1"})

	conn := dialHub(t, hub, "s-1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, want := range []string{"started", "viewed"} {
		var got Event
		if err := wsjson.Read(ctx, conn, &got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.Type != want {
			t.Errorf("replayed %q, want %q", got.Type, want)
		}
	}
}

func TestHub_CloseForgetsHistory(t *testing.T) {
	hub := NewHub(nil)
	hub.Publish(Event{Type: "started", SessionID: "s-1"})
	if n := len(hub.History("s-1")); n != 1 {
		t.Fatalf("history length = %d", n)
	}
	hub.Close("s-1")
	if n := len(hub.History("s-1")); n != 0 {
		t.Errorf("history length after close = %d", n)
	}
}
