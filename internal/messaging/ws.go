package messaging

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans events out to websocket clients. Clients subscribe either to a
// conversation room or to their own user stream. Hub implements
// alerts.Pusher.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]bool
	users map[string]map[*client]bool
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]bool),
		users: make(map[string]map[*client]bool),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func join(set map[string]map[*client]bool, key string, c *client) {
	if set[key] == nil {
		set[key] = make(map[*client]bool)
	}
	set[key][c] = true
}

func leave(set map[string]map[*client]bool, key string, c *client) {
	delete(set[key], c)
	if len(set[key]) == 0 {
		delete(set, key)
	}
}

func (h *Hub) deliver(targets []*client, evt wsEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", evt.Type).Msg("ws encode failed")
		return
	}
	for _, c := range targets {
		if err := c.send(payload); err != nil {
			log.Debug().Err(err).Str("user_id", c.userID).Msg("ws write failed")
		}
	}
}

func snapshot(set map[*client]bool) []*client {
	out := make([]*client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Broadcast publishes an event to every client in a conversation room.
func (h *Hub) Broadcast(conversationID, kind string, v any) {
	h.mu.RLock()
	targets := snapshot(h.rooms[conversationID])
	h.mu.RUnlock()
	h.deliver(targets, wsEvent{Type: kind, Data: v})
}

// Push publishes an event to every user-stream connection of userID.
func (h *Hub) Push(userID, kind string, v any) {
	h.mu.RLock()
	targets := snapshot(h.users[userID])
	h.mu.RUnlock()
	h.deliver(targets, wsEvent{Type: kind, Data: v})
}

// Clients returns the number of connections in a room, or on a user stream
// when room is empty.
func (h *Hub) Clients(room, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room != "" {
		return len(h.rooms[room])
	}
	return len(h.users[userID])
}

// serveRoom upgrades the request and keeps the socket registered in the
// conversation room until the client goes away.
func (h *Hub) serveRoom(w http.ResponseWriter, r *http.Request, conversationID, userID string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{userID: userID, conn: ws}

	h.mu.Lock()
	join(h.rooms, conversationID, c)
	h.mu.Unlock()
	h.Broadcast(conversationID, "presence_join", map[string]string{"user_id": userID})

	readUntilClosed(ws)

	h.mu.Lock()
	leave(h.rooms, conversationID, c)
	h.mu.Unlock()
	_ = ws.Close()
	h.Broadcast(conversationID, "presence_leave", map[string]string{"user_id": userID})
	return nil
}

// serveUser upgrades the request into the caller's personal stream that
// carries notifications.
func (h *Hub) serveUser(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{userID: userID, conn: ws}

	h.mu.Lock()
	join(h.users, userID, c)
	h.mu.Unlock()
	h.deliver([]*client{c}, wsEvent{Type: "ready", Data: map[string]string{"user_id": userID}})

	readUntilClosed(ws)

	h.mu.Lock()
	leave(h.users, userID, c)
	h.mu.Unlock()
	_ = ws.Close()
	return nil
}

// readUntilClosed discards client frames; the protocol is server push only.
func readUntilClosed(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
