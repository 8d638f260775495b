package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillswap/internal/progression"
)

// XPRepo is the Postgres progression.Ledger.
type XPRepo struct {
	pool *pgxpool.Pool
}

func NewXPRepo(pool *pgxpool.Pool) *XPRepo {
	return &XPRepo{pool: pool}
}

func (r *XPRepo) Total(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::bigint FROM xp_awards WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// Apply serializes awards per user with a transaction-scoped advisory lock so
// the reported before/after totals bracket exactly this award.
func (r *XPRepo) Apply(ctx context.Context, a progression.Award) (int64, int64, bool, error) {
	if a.Amount < 0 {
		return 0, 0, false, progression.ErrNegativeAward
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.UserID); err != nil {
		return 0, 0, false, err
	}

	var before int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::bigint FROM xp_awards WHERE user_id = $1`, a.UserID).Scan(&before)
	if err != nil {
		return 0, 0, false, err
	}

	var inserted string
	err = tx.QueryRow(ctx, `
		INSERT INTO xp_awards (id, user_id, request_id, amount, reason, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6)
		ON CONFLICT (user_id, request_id) WHERE request_id IS NOT NULL DO NOTHING
		RETURNING id::text`,
		a.ID, a.UserID, a.RequestID, a.Amount, a.Reason, a.CreatedAt).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return before, before, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, false, err
	}
	return before, before + a.Amount, true, nil
}

func (r *XPRepo) History(ctx context.Context, userID string, limit int) ([]progression.Award, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, COALESCE(request_id::text, ''), amount, reason, created_at
		FROM xp_awards WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progression.Award
	for rows.Next() {
		var a progression.Award
		if err := rows.Scan(&a.ID, &a.UserID, &a.RequestID, &a.Amount, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Leaderboard returns the users with the highest cumulative XP.
func (r *XPRepo) Leaderboard(ctx context.Context, limit int) ([]progression.Standing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text, SUM(amount)::bigint AS total
		FROM xp_awards GROUP BY user_id
		ORDER BY total DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[progression.Standing])
}
