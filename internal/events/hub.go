// Package events fans tunnel lifecycle notifications out to WebSocket
// subscribers on the ops listener.
package events

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nport/nport-edge/internal/domain"
)

// Event kinds published by the edge.
const (
	KindTunnelCreated = "tunnel.created"
	KindTunnelReaped  = "tunnel.reaped"
)

// Event is a single tunnel lifecycle notification.
type Event struct {
	Kind   string        `json:"kind"`
	Tunnel domain.Tunnel `json:"tunnel"`
	At     time.Time     `json:"at"`
}

const subscriberBuffer = 16
const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans events out to connected subscribers. Publishing never blocks; a
// subscriber that falls behind loses events instead of stalling the server.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[chan Event]struct{}),
	}
}

// Publish delivers evt to every subscriber. A nil hub drops events, so
// callers can treat the hub as optional wiring.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel plus an
// unsubscribe func. The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events as JSON frames until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Error("websocket upgrade failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := h.Subscribe()
	defer cancel()

	// Drain reads so client-initiated close is noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
