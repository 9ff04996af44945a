// Package events streams experiment session updates to websocket subscribers.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Event is one session update pushed to subscribers.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Hub tracks websocket subscribers per session id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*websocket.Conn]struct{}
	hist   map[string]*ring
	origin []string
}

// NewHub creates a hub accepting connections from the given origin patterns.
func NewHub(originPatterns []string) *Hub {
	return &Hub{
		subs:   make(map[string]map[*websocket.Conn]struct{}),
		hist:   make(map[string]*ring),
		origin: originPatterns,
	}
}

// Subscribers returns the number of live connections for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// History returns the recent events of a session, oldest first.
func (h *Hub) History(sessionID string) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.hist[sessionID]; ok {
		return r.events()
	}
	return []Event{}
}

// register adds conn and returns the history it should be replayed, taken
// atomically with the registration so no event is missed.
func (h *Hub) register(sessionID string, conn *websocket.Conn) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sessionID]; !ok {
		h.subs[sessionID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[sessionID][conn] = struct{}{}
	slog.Info("Session subscriber registered", "session_id", sessionID)
	if r, ok := h.hist[sessionID]; ok {
		return r.events()
	}
	return nil
}

func (h *Hub) unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, exists := conns[conn]; !exists {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.subs, sessionID)
	}
	slog.Info("Session subscriber unregistered", "session_id", sessionID)
}

// Serve upgrades the request and streams events for sessionID until the
// client disconnects or the session is closed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origin,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}

	backlog := h.register(sessionID, conn)
	defer h.unregister(sessionID, conn)

	// Subscribers only listen; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for _, ev := range backlog {
		if err := h.write(ctx, conn, ev); err != nil {
			slog.Debug("Replay to subscriber failed", "session_id", sessionID, "error", err)
			return
		}
	}
	<-ctx.Done()
	slog.Debug("Session subscriber disconnected", "session_id", sessionID, "reason", ctx.Err())
}

// Publish records ev in the session history and sends it to every
// subscriber of ev.SessionID. Subscribers that cannot be written to are
// dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	r, ok := h.hist[ev.SessionID]
	if !ok {
		r = newRing(historySize)
		h.hist[ev.SessionID] = r
	}
	r.push(ev)
	conns := make([]*websocket.Conn, 0, len(h.subs[ev.SessionID]))
	for c := range h.subs[ev.SessionID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := h.write(context.Background(), c, ev); err != nil {
			slog.Debug("Dropping session subscriber", "session_id", ev.SessionID, "error", err)
			h.unregister(ev.SessionID, c)
			_ = c.Close(websocket.StatusInternalError, "write failed")
		}
	}
}

func (h *Hub) write(ctx context.Context, c *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, ev)
}

// Close disconnects every subscriber of a session and forgets its history.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	conns := h.subs[sessionID]
	delete(h.subs, sessionID)
	delete(h.hist, sessionID)
	h.mu.Unlock()

	for c := range conns {
		_ = c.Close(websocket.StatusNormalClosure, "session closed")
	}
	if len(conns) > 0 {
		slog.Info("Session subscribers closed", "session_id", sessionID, "count", len(conns))
	}
}
