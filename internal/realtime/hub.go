// Package realtime is the Realtime Room Hub: a gorilla/websocket hub
// generalized from the teacher's single global room (internal/websocket
// dag streamer) to per-organization rooms, with JWT handshake auth.
package realtime

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the envelope broadcast to dashboard sockets, following the
// teacher's CloudEvents-shaped payload but scoped per room rather than
// globally subscribed.
type Event struct {
	Type      string                 `json:"type"`
	OrgID     string                 `json:"org_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
	room string
}

// Hub manages per-org rooms of websocket connections. Each connection's
// send queue is bounded so a slow dashboard socket cannot back-pressure
// broadcasters (§5: "slow consumers must not back-pressure broadcasters").
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan roomEvent

	upgrader websocket.Upgrader

	fanout FanOut // optional cross-instance Redis Pub/Sub fan-out
}

// FanOut lets the Hub publish broadcasts to other Producer instances, and
// is satisfied by internal/realtime/redis_fanout.go.
type FanOut interface {
	Publish(room string, event Event)
}

type roomEvent struct {
	room  string
	event Event
}

const sendQueueSize = 64

func Room(orgID string) string {
	return "org:" + orgID
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan roomEvent, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) SetFanOut(f FanOut) {
	h.fanout = f
}

// Run drives the hub's single accept loop; call once from main in a
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.room] == nil {
				h.rooms[c.room] = make(map[*client]bool)
			}
			h.rooms[c.room][c] = true
			h.mu.Unlock()
			slog.Info("realtime: client joined room", "room", c.room, "size", len(h.rooms[c.room]))

		case c := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[c.room]; ok {
				if _, present := room[c]; present {
					delete(room, c)
					close(c.send)
					c.conn.Close()
				}
				if len(room) == 0 {
					delete(h.rooms, c.room)
				}
			}
			h.mu.Unlock()

		case re := <-h.broadcast:
			h.mu.RLock()
			for c := range h.rooms[re.room] {
				select {
				case c.send <- re.event:
				default:
					slog.Warn("realtime: dropping event for slow consumer", "room", re.room)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast publishes an event to a single org's room, and only that room
// (§4.6: "broadcasts target the org's room only"). A missing/empty orgId is
// never broadcast globally — it is dropped and logged (§9's hardening
// decision).
func (h *Hub) Broadcast(orgID, eventType string, data map[string]interface{}) {
	if orgID == "" {
		slog.Warn("realtime: dropping broadcast with missing org_id", "type", eventType)
		return
	}
	event := Event{Type: eventType, OrgID: orgID, Timestamp: time.Now(), Data: data}
	room := Room(orgID)
	h.broadcast <- roomEvent{room: room, event: event}
	if h.fanout != nil {
		h.fanout.Publish(room, event)
	}
}

// DeliverLocal re-injects an event received from another instance's
// fan-out directly into this instance's room broadcast, bypassing the
// FanOut re-publish to avoid an echo loop.
func (h *Hub) DeliverLocal(room string, event Event) {
	h.broadcast <- roomEvent{room: room, event: event}
}

// HandshakeIdentity is the minimal claim set the hub needs out of a
// verified handshake token — decoupled from internal/identity's Principal
// type so this package stays free of an import-cycle-prone dependency.
type HandshakeIdentity struct {
	OrgID  string
	UserID string
	Role   string
}

// VerifyFunc authenticates the handshake token; wired in main.go from
// identity.JWTIssuer.Verify.
type VerifyFunc func(token string) (HandshakeIdentity, error)

// HandleWebSocket implements the §4.6 handshake: extract token, reject with
// auth-error on failure, else join org:{orgId} and emit auth-success.
func (h *Hub) HandleWebSocket(verify VerifyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("realtime: upgrade failed", "error", err)
			return
		}

		token := r.URL.Query().Get("token")
		identity, err := verify(token)
		if err != nil || token == "" {
			conn.WriteJSON(Event{Type: "auth-error", Data: map[string]interface{}{
				"message": "invalid or missing handshake token",
			}})
			conn.Close()
			return
		}

		c := &client{conn: conn, send: make(chan Event, sendQueueSize), room: Room(identity.OrgID)}
		h.register <- c

		conn.WriteJSON(Event{Type: "auth-success", OrgID: identity.OrgID, Data: map[string]interface{}{
			"orgId":  identity.OrgID,
			"userId": identity.UserID,
			"role":   identity.Role,
		}})

		go c.writeLoop()
		go c.readLoop(h)
	}
}

func (c *client) writeLoop() {
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

func (c *client) readLoop(h *Hub) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
