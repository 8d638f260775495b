package trade

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ListFilter narrows the open-marketplace listing.
type ListFilter struct {
	Skill  string
	Limit  int
	Offset int
}

// Store persists trade aggregates. Update and Delete run fn against a private
// copy inside one atomic unit; when fn returns an error nothing is written and
// the error is returned unchanged.
type Store interface {
	Create(ctx context.Context, t *Trade) error
	Get(ctx context.Context, id string) (*Trade, error)
	RequestIDForInterest(ctx context.Context, interestID string) (string, error)
	Update(ctx context.Context, id string, fn func(t *Trade) error) (*Trade, error)
	Delete(ctx context.Context, id string, fn func(t *Trade) error) error
	ListOpen(ctx context.Context, f ListFilter) ([]*Trade, error)
	ListForUser(ctx context.Context, userID string, archived bool) ([]*Trade, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// MemoryStore is an in-process Store guarded by a single mutex.
type MemoryStore struct {
	mu     sync.Mutex
	trades map[string]*Trade
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[string]*Trade)}
}

func (m *MemoryStore) Create(_ context.Context, t *Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[t.Request.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) RequestIDForInterest(_ context.Context, interestID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.trades {
		if t.Interest(interestID) != nil {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(t *Trade) error) (*Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.trades[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Request.UpdatedAt = time.Now().UTC()
	m.trades[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string, fn func(t *Trade) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.trades[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(cur.Clone()); err != nil {
		return err
	}
	delete(m.trades, id)
	return nil
}

func (m *MemoryStore) ListOpen(_ context.Context, f ListFilter) ([]*Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Trade
	for _, t := range m.trades {
		if t.Request.Status != StatusPosted {
			continue
		}
		if f.Skill != "" && !strings.Contains(strings.ToLower(t.Request.SkillNeeded), strings.ToLower(f.Skill)) {
			continue
		}
		out = append(out, t.Clone())
	}
	sortNewestFirst(out)
	return page(out, f.Limit, f.Offset), nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string, archived bool) ([]*Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Trade
	for _, t := range m.trades {
		if t.Request.Archived != archived {
			continue
		}
		if t.IsParticipant(userID) || hasInterestFrom(t, userID) {
			out = append(out, t.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int)
	for _, t := range m.trades {
		counts[t.Request.Status]++
	}
	return counts, nil
}

func hasInterestFrom(t *Trade, userID string) bool {
	for _, in := range t.Interests {
		if in.ResponderID == userID {
			return true
		}
	}
	return false
}

func sortNewestFirst(ts []*Trade) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].Request.CreatedAt.After(ts[j].Request.CreatedAt)
	})
}

func page(ts []*Trade, limit, offset int) []*Trade {
	if offset >= len(ts) {
		return nil
	}
	ts = ts[offset:]
	if limit > 0 && len(ts) > limit {
		ts = ts[:limit]
	}
	return ts
}

// RatingStats summarizes the ratings a user has received.
type RatingStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// RatingsReceived aggregates the scores given to userID across all trades.
func (m *MemoryStore) RatingsReceived(_ context.Context, userID string) (RatingStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st RatingStats
	sum := 0
	for _, t := range m.trades {
		for _, r := range t.Ratings {
			if r.RateeID == userID {
				st.Count++
				sum += r.Score
			}
		}
	}
	if st.Count > 0 {
		st.Average = float64(sum) / float64(st.Count)
	}
	return st, nil
}
