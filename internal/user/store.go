package user

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Store persists accounts and profiles.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*User, error)
	SetRole(ctx context.Context, email, role string) error
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context, limit, offset int) ([]User, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PGStore keeps users in the users table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const userColumns = `id::text, name, email, password, role, bio, skills, avatar_url, COALESCE(is_active, TRUE), created_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.Skills == nil {
		u.Skills = []string{}
	}
	u.Email = normalizeEmail(u.Email)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password, role, bio, skills)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, COALESCE(is_active, TRUE)
	`, u.ID, u.Name, u.Email, u.Password, u.Role, u.Bio, u.Skills).Scan(&u.CreatedAt, &u.IsActive)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *PGStore) one(ctx context.Context, where string, arg any) (*User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[User])
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s *PGStore) ByID(ctx context.Context, id string) (*User, error) {
	return s.one(ctx, `id = $1`, id)
}

func (s *PGStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, `email = $1`, normalizeEmail(email))
}

func (s *PGStore) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*User, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE users
		SET name = COALESCE($1, name),
		    bio = COALESCE($2, bio),
		    avatar_url = COALESCE($3, avatar_url),
		    skills = COALESCE($4, skills)
		WHERE id = $5
	`, p.Name, p.Bio, p.AvatarURL, p.Skills, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.ByID(ctx, id)
}

func (s *PGStore) SetRole(ctx context.Context, email, role string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE email = $2`, role, normalizeEmail(email))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[User])
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

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func clone(u *User) *User {
	cp := *u
	cp.Skills = append([]string{}, u.Skills...)
	return &cp
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = normalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.Skills == nil {
		u.Skills = []string{}
	}
	u.IsActive = true
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = clone(u)
	return nil
}

func (m *MemoryStore) ByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryStore) ByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id string, p ProfileUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.Skills != nil {
		u.Skills = append([]string{}, p.Skills...)
	}
	return clone(u), nil
}

func (m *MemoryStore) SetRole(_ context.Context, email, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			u.Role = role
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []User{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
