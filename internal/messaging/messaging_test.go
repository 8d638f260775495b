package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func TestOpenIsIdempotentPerRequest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Open(ctx, "req-1", "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := s.Open(ctx, "req-1", "alice", "bob")
	if first != again {
		t.Fatalf("second open returned %s, want %s", again, first)
	}
	other, _ := s.Open(ctx, "req-2", "alice", "carol")
	if other == first {
		t.Fatal("distinct requests must get distinct conversations")
	}

	convs, _ := s.ListForUser(ctx, "alice")
	if len(convs) != 2 {
		t.Errorf("alice has %d conversations, want 2", len(convs))
	}
	convs, _ = s.ListForUser(ctx, "bob")
	if len(convs) != 1 {
		t.Errorf("bob has %d conversations, want 1", len(convs))
	}
}

func TestSendAndReadReceipts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, _ := s.Open(ctx, "req-1", "alice", "bob")

	tests := []struct {
		name   string
		sender string
		body   string
		want   error
	}{
		{"empty", "alice", "   ", ErrEmpty},
		{"too long", "alice", strings.Repeat("é", MaxMessageLength+1), ErrTooLong},
		{"outsider", "mallory", "hi", ErrForbidden},
		{"ok", "alice", "  hello bob ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Send(ctx, id, tt.sender, tt.body)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := s.Send(ctx, "missing", "alice", "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("send to unknown conversation: %v", err)
	}

	msgs, _ := s.Messages(ctx, id, time.Time{})
	if len(msgs) != 1 || msgs[0].Body != "hello bob" {
		t.Fatalf("messages = %+v", msgs)
	}

	if n, _ := s.UnreadCount(ctx, id, "bob"); n != 1 {
		t.Errorf("bob unread = %d, want 1", n)
	}
	if n, _ := s.UnreadCount(ctx, id, "alice"); n != 0 {
		t.Errorf("own messages count as unread: %d", n)
	}

	if _, err := s.MarkRead(ctx, id, msgs[0].ID, "alice"); !errors.Is(err, ErrNotReceiver) {
		t.Errorf("sender marking read: %v", err)
	}
	first, err := s.MarkRead(ctx, id, msgs[0].ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := s.MarkRead(ctx, id, msgs[0].ID, "bob")
	if !first.Equal(second) {
		t.Errorf("read receipt moved from %v to %v", first, second)
	}
	if n, _ := s.UnreadCount(ctx, id, "bob"); n != 0 {
		t.Errorf("bob unread after read = %d", n)
	}
}

func TestMessagesSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	s.now = func() time.Time { tick = tick.Add(time.Minute); return tick }

	id, _ := s.Open(ctx, "req-1", "alice", "bob")
	s.Send(ctx, id, "alice", "one")
	s.Send(ctx, id, "bob", "two")
	s.Send(ctx, id, "alice", "three")

	msgs, _ := s.Messages(ctx, id, base.Add(3*time.Minute))
	if len(msgs) != 1 || msgs[0].Body != "three" {
		t.Fatalf("since filter returned %+v", msgs)
	}
}

func newTestServer(t *testing.T, store Store, hub *Hub) *httptest.Server {
	t.Helper()
	h := NewHandler(store, hub)
	e := echo.New()
	auth := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u := c.Request().Header.Get("X-User"); u != "" {
				c.Set("user_id", u)
			}
			return next(c)
		}
	}
	g := e.Group("", auth)
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/messages", h.SendMessage)
	g.GET("/conversations/:id/unread", h.UnreadCount)
	g.POST("/conversations/:id/messages/:message_id/read", h.MarkMessageRead)
	g.GET("/conversations/:id/ws", h.ConversationWS)
	g.GET("/ws", h.StreamWS)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out map[string]any
	json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestHandlers(t *testing.T) {
	store := NewMemoryStore()
	id, _ := store.Open(context.Background(), "req-1", "alice", "bob")
	srv := newTestServer(t, store, NewHub())
	path := "/conversations/" + id

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
	}{
		{"anonymous", http.MethodGet, path + "/messages", "", "", http.StatusUnauthorized},
		{"outsider", http.MethodGet, path + "/messages", "mallory", "", http.StatusForbidden},
		{"unknown conversation", http.MethodGet, "/conversations/nope/messages", "alice", "", http.StatusNotFound},
		{"empty body", http.MethodPost, path + "/messages", "alice", `{"body":""}`, http.StatusBadRequest},
		{"send", http.MethodPost, path + "/messages", "alice", `{"body":"hi"}`, http.StatusCreated},
		{"bad since", http.MethodGet, path + "/messages?since=yesterday", "bob", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.user, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d (%v), want %d", status, body, tt.status)
			}
		})
	}

	_, unread := do(t, srv, http.MethodGet, path+"/unread", "bob", "")
	if unread["unread"] != float64(1) {
		t.Fatalf("unread = %v", unread)
	}

	_, list := do(t, srv, http.MethodGet, path+"/messages", "bob", "")
	msgs := list["messages"].([]any)
	msgID := msgs[0].(map[string]any)["id"].(string)

	if status, _ := do(t, srv, http.MethodPost, path+"/messages/"+msgID+"/read", "alice", ""); status != http.StatusForbidden {
		t.Errorf("sender read receipt = %d, want 403", status)
	}
	if status, _ := do(t, srv, http.MethodPost, path+"/messages/"+msgID+"/read", "bob", ""); status != http.StatusOK {
		t.Errorf("recipient read receipt = %d", status)
	}

	_, convs := do(t, srv, http.MethodGet, "/conversations", "bob", "")
	items := convs["conversations"].([]any)
	first := items[0].(map[string]any)
	if first["with"] != "alice" || first["unread"] != float64(0) {
		t.Errorf("conversation list = %v", first)
	}
}

func dial(t *testing.T, srv *httptest.Server, path, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User": []string{user}})
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) wsEvent {
	t.Helper()
	var evt wsEvent
	if err := ws.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	return evt
}

func TestRealtimeDelivery(t *testing.T) {
	store := NewMemoryStore()
	hub := NewHub()
	id, _ := store.Open(context.Background(), "req-1", "alice", "bob")
	srv := newTestServer(t, store, hub)

	room := dial(t, srv, "/conversations/"+id+"/ws", "alice")
	if evt := readEvent(t, room); evt.Type != "presence_join" {
		t.Fatalf("first room event = %s", evt.Type)
	}
	stream := dial(t, srv, "/ws", "bob")
	if evt := readEvent(t, stream); evt.Type != "ready" {
		t.Fatalf("first stream event = %s", evt.Type)
	}

	if status, _ := do(t, srv, http.MethodPost, "/conversations/"+id+"/messages", "alice", `{"body":"ping"}`); status != http.StatusCreated {
		t.Fatalf("send status = %d", status)
	}
	if evt := readEvent(t, room); evt.Type != "message_new" {
		t.Errorf("room got %s, want message_new", evt.Type)
	}
	if evt := readEvent(t, stream); evt.Type != "message:new" {
		t.Errorf("stream got %s, want message:new", evt.Type)
	}

	hub.Push("bob", "notification", map[string]string{"title": "proof approved"})
	if evt := readEvent(t, stream); evt.Type != "notification" {
		t.Errorf("stream got %s, want notification", evt.Type)
	}

	_, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/conversations/"+id+"/ws",
		http.Header{"X-User": []string{"mallory"}})
	if err == nil {
		t.Error("outsider joined the conversation room")
	}
}
