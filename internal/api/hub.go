package api

import (
	"net/http"
	"sync"
	"time"

	"tablebook/internal/events"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 16
)

// SlotsChanged is pushed to every subscriber after a commit.
type SlotsChanged struct {
	Type    string `json:"type"`
	Version int64  `json:"version"`
}

// subscriber owns one connection. Only its writer goroutine writes to conn.
type subscriber struct {
	conn *websocket.Conn
	send chan any
}

// Hub fans out commit notifications to WebSocket subscribers. Clients
// refetch the shared view on notification; no reservation data is pushed.
// Broadcast never blocks on the network: a subscriber whose buffer is full
// is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	logger   *zerolog.Logger
}

func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// HandleWS upgrades the request and keeps the connection until the client leaves.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan any, sendBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(sub)
}

func (h *Hub) writeLoop(sub *subscriber) {
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket write failed")
			// the read loop sees the closed connection and unregisters
			sub.conn.Close()
			return
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	h.drop(sub)
	h.mu.Unlock()
}

// drop must be called with h.mu held.
func (h *Hub) drop(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	sub.conn.Close()
}

// Broadcast queues msg for every subscriber and drops the ones that lag behind.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			h.logger.Warn().Msg("WebSocket subscriber too slow, disconnecting")
			h.drop(sub)
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// OnCommitted is an event handler for events.EventBookingCommitted.
func (h *Hub) OnCommitted() events.EventHandler {
	return func(e *events.Event) error {
		var p events.CommittedPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		h.Broadcast(SlotsChanged{Type: "slots_changed", Version: p.Version})
		return nil
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		_ = sub.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		h.drop(sub)
	}
}
