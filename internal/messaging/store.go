package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxMessageLength caps a message body in runes.
const MaxMessageLength = 4000

var (
	ErrNotFound    = errors.New("conversation or message not found")
	ErrForbidden   = errors.New("not a participant in this conversation")
	ErrEmpty       = errors.New("message is empty")
	ErrTooLong     = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	ErrNotReceiver = errors.New("only the recipient can mark a message read")
)

// Conversation is the private channel between the two participants of a
// trade request. There is at most one per request.
type Conversation struct {
	ID            string     `json:"id"`
	RequestID     string     `json:"request_id"`
	UserA         string     `json:"user_a"`
	UserB         string     `json:"user_b"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// Member reports whether userID takes part in the conversation.
func (c *Conversation) Member(userID string) bool {
	return userID != "" && (userID == c.UserA || userID == c.UserB)
}

// Other returns the counterpart of userID.
func (c *Conversation) Other(userID string) string {
	if userID == c.UserA {
		return c.UserB
	}
	return c.UserA
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}

// Store persists conversations and messages. Open satisfies
// trade.ChannelOpener.
type Store interface {
	Open(ctx context.Context, requestID, userA, userB string) (string, error)
	Get(ctx context.Context, conversationID string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]Conversation, error)
	Send(ctx context.Context, conversationID, senderID, body string) (*Message, error)
	Messages(ctx context.Context, conversationID string, since time.Time) ([]Message, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
	MarkRead(ctx context.Context, conversationID, messageID, userID string) (time.Time, error)
}

func checkBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", ErrTooLong
	}
	return body, nil
}

// PGStore keeps conversations in the conversations and messages tables.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Open(ctx context.Context, requestID, userA, userB string) (string, error) {
	var id string
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (request_id, user_a, user_b)
         VALUES ($1, $2, $3)
         ON CONFLICT (request_id) DO UPDATE SET request_id = EXCLUDED.request_id
         RETURNING id::text`, requestID, userA, userB,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("open conversation: %w", err)
	}
	return id, nil
}

const conversationColumns = `id::text, request_id::text, user_a::text, user_b::text, created_at, last_message_at`

func (s *PGStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return nil, mapErr(err)
	}
	conv, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Conversation])
	if err != nil {
		return nil, mapErr(err)
	}
	return conv, nil
}

func (s *PGStore) ListForUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations
         WHERE user_a = $1 OR user_b = $1
         ORDER BY COALESCE(last_message_at, created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Conversation])
}

func (s *PGStore) Send(ctx context.Context, conversationID, senderID, body string) (*Message, error) {
	body, err := checkBody(body)
	if err != nil {
		return nil, err
	}
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Member(senderID) {
		return nil, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	m := &Message{ID: uuid.New().String(), ConversationID: conversationID, SenderID: senderID, Body: body}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, body)
         VALUES ($1, $2, $3, $4) RETURNING created_at`,
		m.ID, conversationID, senderID, body,
	).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`, conversationID, m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PGStore) Messages(ctx context.Context, conversationID string, since time.Time) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, conversation_id::text, sender_id::text, body, created_at, read_at
         FROM messages
         WHERE conversation_id = $1 AND created_at > $2
         ORDER BY created_at ASC`, conversationID, since,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
}

func (s *PGStore) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
         WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL`,
		conversationID, userID,
	).Scan(&count)
	return count, err
}

func (s *PGStore) MarkRead(ctx context.Context, conversationID, messageID, userID string) (time.Time, error) {
	var senderID string
	var readAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT sender_id::text, read_at FROM messages WHERE id = $1 AND conversation_id = $2`,
		messageID, conversationID,
	).Scan(&senderID, &readAt)
	if err != nil {
		return time.Time{}, mapErr(err)
	}
	if senderID == userID {
		return time.Time{}, ErrNotReceiver
	}
	if readAt != nil {
		return *readAt, nil
	}

	var ts time.Time
	err = s.pool.QueryRow(ctx,
		`UPDATE messages SET read_at = COALESCE(read_at, NOW()) WHERE id = $1 RETURNING read_at`, messageID,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("mark read: %w", err)
	}
	return ts, nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return ErrNotFound
	}
	return err
}

// MemoryStore is an in-process Store used in tests and single-node setups.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	convs     map[string]*Conversation
	byRequest map[string]string
	messages  map[string][]*Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		convs:     make(map[string]*Conversation),
		byRequest: make(map[string]string),
		messages:  make(map[string][]*Message),
	}
}

func (m *MemoryStore) Open(_ context.Context, requestID, userA, userB string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byRequest[requestID]; ok {
		return id, nil
	}
	c := &Conversation{
		ID:        uuid.New().String(),
		RequestID: requestID,
		UserA:     userA,
		UserB:     userB,
		CreatedAt: m.now(),
	}
	m.convs[c.ID] = c
	m.byRequest[requestID] = c.ID
	return c.ID, nil
}

func (m *MemoryStore) Get(_ context.Context, conversationID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for _, c := range m.convs {
		if c.Member(userID) {
			out = append(out, *c)
		}
	}
	activity := func(c Conversation) time.Time {
		if c.LastMessageAt != nil {
			return *c.LastMessageAt
		}
		return c.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool { return activity(out[i]).After(activity(out[j])) })
	return out, nil
}

func (m *MemoryStore) Send(_ context.Context, conversationID, senderID, body string) (*Message, error) {
	body, err := checkBody(body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	if !c.Member(senderID) {
		return nil, ErrForbidden
	}
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      m.now(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	ts := msg.CreatedAt
	c.LastMessageAt = &ts
	cp := *msg
	return &cp, nil
}

func (m *MemoryStore) Messages(_ context.Context, conversationID string, since time.Time) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages[conversationID] {
		if msg.CreatedAt.After(since) {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *MemoryStore) UnreadCount(_ context.Context, conversationID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != userID && msg.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, conversationID, messageID, userID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages[conversationID] {
		if msg.ID != messageID {
			continue
		}
		if msg.SenderID == userID {
			return time.Time{}, ErrNotReceiver
		}
		if msg.ReadAt == nil {
			ts := m.now()
			msg.ReadAt = &ts
		}
		return *msg.ReadAt, nil
	}
	return time.Time{}, ErrNotFound
}
