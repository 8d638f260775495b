package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// TradeRepo is the Postgres trade.Store. Update and Delete lock the request
// row with SELECT ... FOR UPDATE for the length of one transaction.
type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *TradeRepo) Create(ctx context.Context, t *trade.Trade) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	req := t.Request
	_, err = tx.Exec(ctx, `
		INSERT INTO trade_requests (id, owner_id, skill_needed, description, deadline, status, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)`,
		req.ID, req.OwnerID, req.SkillNeeded, req.Description, req.Deadline, string(req.Status), req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade request: %w", err)
	}
	if err := saveChildren(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TradeRepo) Get(ctx context.Context, id string) (*trade.Trade, error) {
	return load(ctx, r.pool, id, false)
}

func (r *TradeRepo) RequestIDForInterest(ctx context.Context, interestID string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT request_id::text FROM trade_interests WHERE id = $1`, interestID).Scan(&id)
	if err != nil {
		return "", mapErr(err)
	}
	return id, nil
}

func (r *TradeRepo) Update(ctx context.Context, id string, fn func(t *trade.Trade) error) (*trade.Trade, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := load(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Request.UpdatedAt = time.Now().UTC()

	req := next.Request
	_, err = tx.Exec(ctx, `
		UPDATE trade_requests
		SET status = $2, partner_id = NULLIF($3, '')::uuid, accepted_interest_id = NULLIF($4, '')::uuid,
		    channel_id = NULLIF($5, '')::uuid, archived = $6, updated_at = $7, completed_at = $8
		WHERE id = $1`,
		req.ID, string(req.Status), req.PartnerID, req.InterestID, req.ChannelID, req.Archived, req.UpdatedAt, req.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("update trade request: %w", err)
	}
	if err := saveChildren(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

func (r *TradeRepo) Delete(ctx context.Context, id string, fn func(t *trade.Trade) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cur, err := load(ctx, tx, id, true)
	if err != nil {
		return err
	}
	if err := fn(cur); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM trade_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete trade request: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *TradeRepo) ListOpen(ctx context.Context, f trade.ListFilter) ([]*trade.Trade, error) {
	return r.loadIDs(ctx, `
		SELECT id::text FROM trade_requests
		WHERE status = 'posted' AND ($1 = '' OR skill_needed ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		f.Skill, f.Limit, f.Offset)
}

func (r *TradeRepo) ListForUser(ctx context.Context, userID string, archived bool) ([]*trade.Trade, error) {
	return r.loadIDs(ctx, `
		SELECT r.id::text FROM trade_requests r
		WHERE r.archived = $2
		  AND (r.owner_id = $1 OR r.partner_id = $1
		       OR EXISTS (SELECT 1 FROM trade_interests i WHERE i.request_id = r.id AND i.responder_id = $1))
		ORDER BY r.created_at DESC`,
		userID, archived)
}

func (r *TradeRepo) CountByStatus(ctx context.Context) (map[trade.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM trade_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[trade.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[trade.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *TradeRepo) RatingsReceived(ctx context.Context, userID string) (trade.RatingStats, error) {
	var st trade.RatingStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score)::float8, 0) FROM trade_ratings WHERE ratee_id = $1`, userID,
	).Scan(&st.Count, &st.Average)
	if err != nil {
		return trade.RatingStats{}, mapErr(err)
	}
	return st, nil
}

func (r *TradeRepo) loadIDs(ctx context.Context, sql string, args ...any) ([]*trade.Trade, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]*trade.Trade, 0, len(ids))
	for _, id := range ids {
		t, err := load(ctx, r.pool, id, false)
		if errors.Is(err, trade.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func load(ctx context.Context, q querier, id string, lock bool) (*trade.Trade, error) {
	sql := `
		SELECT id::text, owner_id::text, skill_needed, description, deadline, status,
		       COALESCE(partner_id::text, ''), COALESCE(accepted_interest_id::text, ''),
		       COALESCE(channel_id::text, ''), archived, created_at, updated_at, completed_at
		FROM trade_requests WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}

	t := &trade.Trade{
		Details: make(map[string]trade.DetailSubmission),
		Proofs:  make(map[string]trade.Proof),
		Ratings: make(map[string]trade.Rating),
	}
	req := &t.Request
	var status string
	err := q.QueryRow(ctx, sql, id).Scan(
		&req.ID, &req.OwnerID, &req.SkillNeeded, &req.Description, &req.Deadline, &status,
		&req.PartnerID, &req.InterestID, &req.ChannelID, &req.Archived,
		&req.CreatedAt, &req.UpdatedAt, &req.CompletedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	req.Status = trade.Status(status)
	req.Deadline = req.Deadline.UTC()

	if err := loadInterests(ctx, q, t); err != nil {
		return nil, err
	}
	if err := loadDetails(ctx, q, t); err != nil {
		return nil, err
	}
	if err := loadAssessment(ctx, q, t); err != nil {
		return nil, err
	}
	if err := loadProofs(ctx, q, t); err != nil {
		return nil, err
	}
	if err := loadRatings(ctx, q, t); err != nil {
		return nil, err
	}
	return t, nil
}

func loadInterests(ctx context.Context, q querier, t *trade.Trade) error {
	rows, err := q.Query(ctx, `
		SELECT id::text, responder_id::text, skill_offered, status, created_at, updated_at
		FROM trade_interests WHERE request_id = $1 ORDER BY created_at, id`, t.Request.ID)
	if err != nil {
		return fmt.Errorf("load interests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		in := trade.Interest{RequestID: t.Request.ID}
		var status string
		if err := rows.Scan(&in.ID, &in.ResponderID, &in.SkillOffered, &status, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return err
		}
		in.Status = trade.InterestStatus(status)
		t.Interests = append(t.Interests, in)
	}
	return rows.Err()
}

func loadDetails(ctx context.Context, q querier, t *trade.Trade) error {
	rows, err := q.Query(ctx, `SELECT user_id::text, details, submitted_at FROM trade_details WHERE request_id = $1`, t.Request.ID)
	if err != nil {
		return fmt.Errorf("load details: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var raw []byte
		var at time.Time
		if err := rows.Scan(&userID, &raw, &at); err != nil {
			return err
		}
		sub := trade.DetailSubmission{Submitted: true, SubmittedAt: &at}
		if err := json.Unmarshal(raw, &sub.Details); err != nil {
			return fmt.Errorf("decode details for %s: %w", userID, err)
		}
		t.Details[userID] = sub
	}
	return rows.Err()
}

func loadAssessment(ctx context.Context, q querier, t *trade.Trade) error {
	var raw []byte
	err := q.QueryRow(ctx, `SELECT assessment FROM trade_evaluations WHERE request_id = $1`, t.Request.ID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}
	var a trade.Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("decode assessment: %w", err)
	}
	t.Assessment = &a
	return nil
}

func loadProofs(ctx context.Context, q querier, t *trade.Trade) error {
	rows, err := q.Query(ctx, `SELECT user_id::text, state, files, updated_at FROM trade_proofs WHERE request_id = $1`, t.Request.ID)
	if err != nil {
		return fmt.Errorf("load proofs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID, state string
		var raw []byte
		var p trade.Proof
		if err := rows.Scan(&userID, &state, &raw, &p.UpdatedAt); err != nil {
			return err
		}
		p.State = trade.ProofState(state)
		if err := json.Unmarshal(raw, &p.Files); err != nil {
			return fmt.Errorf("decode proof files for %s: %w", userID, err)
		}
		t.Proofs[userID] = p
	}
	return rows.Err()
}

func loadRatings(ctx context.Context, q querier, t *trade.Trade) error {
	rows, err := q.Query(ctx, `
		SELECT rater_id::text, ratee_id::text, score, feedback, submitted_at
		FROM trade_ratings WHERE request_id = $1`, t.Request.ID)
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt trade.Rating
		if err := rows.Scan(&rt.RaterID, &rt.RateeID, &rt.Score, &rt.Feedback, &rt.SubmittedAt); err != nil {
			return err
		}
		t.Ratings[rt.RaterID] = rt
	}
	return rows.Err()
}

// saveChildren rewrites every per-participant row of the aggregate in one batch.
func saveChildren(ctx context.Context, tx pgx.Tx, t *trade.Trade) error {
	id := t.Request.ID
	b := &pgx.Batch{}

	for _, in := range t.Interests {
		b.Queue(`
			INSERT INTO trade_interests (id, request_id, responder_id, skill_offered, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			in.ID, id, in.ResponderID, in.SkillOffered, string(in.Status), in.CreatedAt, in.UpdatedAt)
	}

	b.Queue(`DELETE FROM trade_details WHERE request_id = $1`, id)
	for userID, sub := range t.Details {
		if !sub.Submitted {
			continue
		}
		raw, err := json.Marshal(sub.Details)
		if err != nil {
			return err
		}
		at := time.Now().UTC()
		if sub.SubmittedAt != nil {
			at = *sub.SubmittedAt
		}
		b.Queue(`INSERT INTO trade_details (request_id, user_id, details, submitted_at) VALUES ($1, $2, $3, $4)`,
			id, userID, raw, at)
	}

	b.Queue(`DELETE FROM trade_evaluations WHERE request_id = $1`, id)
	if t.Assessment != nil {
		raw, err := json.Marshal(t.Assessment)
		if err != nil {
			return err
		}
		b.Queue(`INSERT INTO trade_evaluations (request_id, assessment, evaluated_at) VALUES ($1, $2, $3)`,
			id, raw, t.Assessment.EvaluatedAt)
	}

	b.Queue(`DELETE FROM trade_proofs WHERE request_id = $1`, id)
	for userID, p := range t.Proofs {
		files := p.Files
		if files == nil {
			files = []trade.FileRef{}
		}
		raw, err := json.Marshal(files)
		if err != nil {
			return err
		}
		b.Queue(`INSERT INTO trade_proofs (request_id, user_id, state, files, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			id, userID, string(p.State), raw, p.UpdatedAt)
	}

	b.Queue(`DELETE FROM trade_ratings WHERE request_id = $1`, id)
	for _, rt := range t.Ratings {
		b.Queue(`
			INSERT INTO trade_ratings (request_id, rater_id, ratee_id, score, feedback, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, rt.RaterID, rt.RateeID, rt.Score, rt.Feedback, rt.SubmittedAt)
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("save trade %s: %w", id, err)
	}
	return nil
}

// mapErr turns lookups of missing or malformed ids into trade.ErrNotFound.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return trade.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return trade.ErrNotFound
	}
	return err
}
