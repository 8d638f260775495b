package alerts

import (
	"time"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// Task type constants
const (
	TaskTradeEvent = "notify:trade_event"
)

// Queue names
const (
	QueueNotifications = "notifications"
)

// TradeEventPayload is the asynq payload for one trade event.
type TradeEventPayload struct {
	Event  trade.Event `json:"event"`
	SentAt time.Time   `json:"sent_at"`
}

// Notification is one in-app notification row.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}
