package progression

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNegativeAward is returned for awards below zero; totals never decrease.
var ErrNegativeAward = errors.New("xp award must not be negative")

// Award is one XP credit. RequestID is empty for manual grants.
type Award struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger owns cumulative XP totals.
type Ledger interface {
	Total(ctx context.Context, userID string) (int64, error)
	// Apply credits an award and returns the totals around it. An award for a
	// (user, request) pair that was already applied changes nothing and
	// reports applied == false with before == after == current total.
	Apply(ctx context.Context, a Award) (before, after int64, applied bool, err error)
	History(ctx context.Context, userID string, limit int) ([]Award, error)
}

// MemoryLedger is an in-process Ledger for tests and local runs.
type MemoryLedger struct {
	mu     sync.Mutex
	totals map[string]int64
	awards []Award
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{totals: make(map[string]int64)}
}

func (m *MemoryLedger) Total(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[userID], nil
}

func (m *MemoryLedger) Apply(_ context.Context, a Award) (int64, int64, bool, error) {
	if a.Amount < 0 {
		return 0, 0, false, ErrNegativeAward
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.totals[a.UserID]
	if a.RequestID != "" {
		for _, prev := range m.awards {
			if prev.UserID == a.UserID && prev.RequestID == a.RequestID {
				return cur, cur, false, nil
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.awards = append(m.awards, a)
	m.totals[a.UserID] = cur + a.Amount
	return cur, cur + a.Amount, true, nil
}

func (m *MemoryLedger) History(_ context.Context, userID string, limit int) ([]Award, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Award
	for _, a := range m.awards {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Standing is one row of the XP leaderboard.
type Standing struct {
	UserID string `json:"user_id"`
	Total  int64  `json:"total"`
}

// Ranker is implemented by ledgers that can rank users by total XP.
type Ranker interface {
	Leaderboard(ctx context.Context, limit int) ([]Standing, error)
}

func (m *MemoryLedger) Leaderboard(_ context.Context, limit int) ([]Standing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Standing, 0, len(m.totals))
	for id, total := range m.totals {
		out = append(out, Standing{UserID: id, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
