package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillswap/internal/db"
	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

// testPool connects to DATABASE_URL and bootstraps the schema, or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if db.Conn == nil {
		db.Init(dsn)
	}
	return db.Conn
}

func seedUsers(t *testing.T, pool *pgxpool.Pool, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.New().String()
		if _, err := pool.Exec(ctx, `INSERT INTO users (id, name, email, password) VALUES ($1, $2, $3, 'x')`,
			ids[i], "repo test", ids[i]+"@example.test"); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM users WHERE id = ANY($1::uuid[])`, ids)
	})
	return ids
}

func TestTradeRepoRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := seedUsers(t, pool, 2)
	owner, partner := users[0], users[1]
	repo := NewTradeRepo(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	tr := &trade.Trade{Request: trade.Request{
		ID:          uuid.New().String(),
		OwnerID:     owner,
		SkillNeeded: "Pottery",
		Description: "Wheel basics",
		Deadline:    time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:      trade.StatusPosted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	interestID := uuid.New().String()
	tr.Interests = []trade.Interest{{
		ID: interestID, RequestID: tr.Request.ID, ResponderID: partner,
		SkillOffered: "Chess", Status: trade.InterestPending, CreatedAt: now, UpdatedAt: now,
	}}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}
	id := tr.Request.ID

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Request.SkillNeeded != "Pottery" || !got.Request.Deadline.Equal(tr.Request.Deadline) || len(got.Interests) != 1 {
		t.Fatalf("loaded %+v", got)
	}
	if rid, err := repo.RequestIDForInterest(ctx, interestID); err != nil || rid != id {
		t.Errorf("RequestIDForInterest = %q, %v", rid, err)
	}

	details := trade.Details{DeliveryMode: trade.DeliveryOnline, SkillLevel: trade.SkillBeginner, RequestType: trade.RequestService, Description: "Two sessions"}
	if _, err := repo.Update(ctx, id, func(t *trade.Trade) error {
		t.Request.Status = trade.StatusActive
		t.Request.PartnerID = partner
		t.Request.InterestID = interestID
		t.Interests[0].Status = trade.InterestAccepted
		t.Details[owner] = trade.DetailSubmission{Submitted: true, Details: details, SubmittedAt: &now}
		t.Details[partner] = trade.DetailSubmission{Submitted: true, Details: details, SubmittedAt: &now}
		t.Assessment = &trade.Assessment{Overall: 7.5, Feedback: "fair", EvaluatedAt: now}
		t.Proofs[owner] = trade.Proof{State: trade.ProofSubmitted, Files: []trade.FileRef{{Name: "a.png", Ref: owner + "_a.png", IsImage: true}}, UpdatedAt: &now}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = repo.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Request.Status != trade.StatusActive || got.Request.PartnerID != partner || got.Interests[0].Status != trade.InterestAccepted {
		t.Errorf("request after update = %+v %+v", got.Request, got.Interests)
	}
	if len(got.Details) != 2 || got.Assessment == nil || got.Assessment.Overall != 7.5 {
		t.Errorf("children after update: details=%d assessment=%+v", len(got.Details), got.Assessment)
	}
	if p := got.Proofs[owner]; p.State != trade.ProofSubmitted || len(p.Files) != 1 || !p.Files[0].IsImage {
		t.Errorf("proof after update = %+v", p)
	}

	// Children are rewritten, so removed entries disappear.
	if _, err := repo.Update(ctx, id, func(t *trade.Trade) error {
		delete(t.Details, owner)
		t.Assessment = nil
		delete(t.Proofs, owner)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.Get(ctx, id)
	if len(got.Details) != 1 || got.Assessment != nil || len(got.Proofs) != 0 {
		t.Errorf("after removal: details=%d assessment=%v proofs=%d", len(got.Details), got.Assessment, len(got.Proofs))
	}

	boom := errors.New("boom")
	if _, err := repo.Update(ctx, id, func(t *trade.Trade) error {
		t.Request.Status = trade.StatusCancelled
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("update err = %v", err)
	}
	if got, _ := repo.Get(ctx, id); got.Request.Status != trade.StatusActive {
		t.Errorf("failed update leaked status %s", got.Request.Status)
	}

	if err := repo.Delete(ctx, id, func(*trade.Trade) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(ctx, id); !errors.Is(err, trade.ErrNotFound) {
		t.Errorf("get after delete = %v", err)
	}
	if _, err := repo.Get(ctx, "not-a-uuid"); !errors.Is(err, trade.ErrNotFound) {
		t.Errorf("malformed id = %v", err)
	}
}

func TestTradeRepoSerializesUpdates(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	owner := seedUsers(t, pool, 1)[0]
	repo := NewTradeRepo(pool)

	now := time.Now().UTC()
	tr := &trade.Trade{Request: trade.Request{
		ID: uuid.New().String(), OwnerID: owner, SkillNeeded: "Knots",
		Deadline: time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC), Status: trade.StatusActive,
		CreatedAt: now, UpdatedAt: now,
	}}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	// Each writer appends one file; without the row lock the rewrite of
	// trade_proofs would lose appends or collide.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, tr.Request.ID, func(t *trade.Trade) error {
				p := t.Proofs[owner]
				p.State = trade.ProofSubmitted
				p.Files = append(p.Files, trade.FileRef{Name: "f", Ref: owner + "_" + uuid.New().String()})
				t.Proofs[owner] = p
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	got, err := repo.Get(ctx, tr.Request.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(got.Proofs[owner].Files); n != writers {
		t.Errorf("files = %d, want %d", n, writers)
	}
}

func TestXPRepoApply(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := seedUsers(t, pool, 2)
	user := users[0]
	repo := NewXPRepo(pool)

	tr := &trade.Trade{Request: trade.Request{
		ID: uuid.New().String(), OwnerID: users[1], SkillNeeded: "Bookbinding",
		Deadline: time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC), Status: trade.StatusCompleted,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}}
	if err := NewTradeRepo(pool).Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		award       progression.Award
		wantBefore  int64
		wantAfter   int64
		wantApplied bool
	}{
		{"completion award", progression.Award{UserID: user, RequestID: tr.Request.ID, Amount: 40, Reason: "trade"}, 0, 40, true},
		{"repeat completion award", progression.Award{UserID: user, RequestID: tr.Request.ID, Amount: 40, Reason: "trade"}, 40, 40, false},
		{"manual grant", progression.Award{UserID: user, Amount: 10, Reason: "bonus"}, 40, 50, true},
		{"second manual grant", progression.Award{UserID: user, Amount: 10, Reason: "bonus"}, 50, 60, true},
	}
	for _, tt := range tests {
		before, after, applied, err := repo.Apply(ctx, tt.award)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if before != tt.wantBefore || after != tt.wantAfter || applied != tt.wantApplied {
			t.Errorf("%s: got (%d, %d, %v), want (%d, %d, %v)", tt.name, before, after, applied, tt.wantBefore, tt.wantAfter, tt.wantApplied)
		}
	}

	if _, _, _, err := repo.Apply(ctx, progression.Award{UserID: user, Amount: -1}); !errors.Is(err, progression.ErrNegativeAward) {
		t.Errorf("negative award = %v", err)
	}
	if total, err := repo.Total(ctx, user); err != nil || total != 60 {
		t.Errorf("Total = %d, %v", total, err)
	}
	history, err := repo.History(ctx, user, 10)
	if err != nil || len(history) != 3 {
		t.Errorf("History = %d entries, %v", len(history), err)
	}
}
