package trade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sudo-init-do/skillswap/internal/progression"
)

var (
	owner     = Actor{UserID: "owner-1"}
	responder = Actor{UserID: "responder-1"}
	other     = Actor{UserID: "responder-2"}
	stranger  = Actor{UserID: "stranger"}
)

func fixedNow() time.Time { return time.Date(2025, 7, 1, 15, 30, 0, 0, time.UTC) }

type fakeScorer struct {
	out   Assessment
	err   error
	calls int
}

func (f *fakeScorer) Score(_ context.Context, in EvaluationInput) (Assessment, error) {
	f.calls++
	return f.out, f.err
}

type fakeChannels struct {
	mu    sync.Mutex
	fail  bool
	opens int
}

func (f *fakeChannels) Open(_ context.Context, requestID, a, b string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("messaging down")
	}
	f.opens++
	return "conv-" + requestID, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeNotifier) Notify(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeNotifier) count(typ EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fakeObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	levelUps []int
}

func (f *fakeObserver) ObserveTransition(op, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = make(map[string]int)
	}
	f.outcomes[op+"/"+outcome]++
}

func (f *fakeObserver) ObserveLevelUp(level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levelUps = append(f.levelUps, level)
}

type harness struct {
	svc      *Service
	store    *MemoryStore
	scorer   *fakeScorer
	channels *fakeChannels
	notes    *fakeNotifier
	ledger   *progression.MemoryLedger
	observer *fakeObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: NewMemoryStore(),
		scorer: &fakeScorer{out: Assessment{
			Overall:        8.2,
			TaskComplexity: 140,
			TimeCommitment: -3,
			SkillLevel:     55,
			Feedback:       "  balanced trade ",
		}},
		channels: &fakeChannels{},
		notes:    &fakeNotifier{},
		ledger:   progression.NewMemoryLedger(),
		observer: &fakeObserver{},
	}
	h.svc = NewService(h.store,
		WithScorer(h.scorer),
		WithChannels(h.channels),
		WithNotifier(h.notes),
		WithLedger(h.ledger),
		WithObserver(h.observer),
		WithClock(fixedNow),
	)
	return h
}

func deadline(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func (h *harness) post(t *testing.T) *Trade {
	t.Helper()
	tr, err := h.svc.Create(context.Background(), owner, CreateInput{
		SkillNeeded: "Guitar lessons",
		Description: "Two sessions on fingerpicking",
		Deadline:    deadline("2025-07-03"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tr
}

func (h *harness) interest(t *testing.T, requestID string, a Actor) *Interest {
	t.Helper()
	_, in, err := h.svc.ExpressInterest(context.Background(), a, requestID, "Web design")
	if err != nil {
		t.Fatalf("express interest as %s: %v", a.UserID, err)
	}
	return in
}

func validDetails() Details {
	return Details{
		DeliveryMode: DeliveryOnline,
		SkillLevel:   SkillIntermediate,
		RequestType:  RequestService,
		Description:  "One hour call per week",
	}
}

var proofFiles = []FileRef{{Name: "recording.mp4", Ref: "proofs/recording.mp4"}}

// active walks a fresh request up to ACTIVE with responder as partner.
func (h *harness) active(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	tr := h.post(t)
	in := h.interest(t, tr.Request.ID, responder)
	if _, err := h.svc.Accept(ctx, owner, in.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	for _, a := range []Actor{owner, responder} {
		if _, err := h.svc.SubmitDetails(ctx, a, tr.Request.ID, validDetails()); err != nil {
			t.Fatalf("submit details as %s: %v", a.UserID, err)
		}
	}
	if _, err := h.svc.Evaluate(ctx, owner, tr.Request.ID); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := h.svc.Confirm(ctx, owner, tr.Request.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return tr.Request.ID
}

// approved extends active until both proofs are approved.
func (h *harness) approved(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := h.active(t)
	for _, a := range []Actor{owner, responder} {
		if _, err := h.svc.SubmitProof(ctx, a, id, proofFiles); err != nil {
			t.Fatalf("submit proof as %s: %v", a.UserID, err)
		}
	}
	for _, a := range []Actor{owner, responder} {
		if _, err := h.svc.ApproveProof(ctx, a, id); err != nil {
			t.Fatalf("approve as %s: %v", a.UserID, err)
		}
	}
	return id
}

func TestTradeScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr := h.post(t)
	if tr.Request.Status != StatusPosted {
		t.Fatalf("expected posted, got %s", tr.Request.Status)
	}
	id := tr.Request.ID

	first := h.interest(t, id, responder)
	second := h.interest(t, id, other)

	tr, err := h.svc.Accept(ctx, owner, first.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if tr.Request.Status != StatusAccepted || tr.Request.PartnerID != responder.UserID {
		t.Fatalf("unexpected request after accept: %+v", tr.Request)
	}
	if got := tr.Interest(second.ID).Status; got != InterestDeclined {
		t.Fatalf("expected sibling declined, got %s", got)
	}
	if tr.Request.ChannelID != "conv-"+id {
		t.Errorf("expected channel recorded, got %q", tr.Request.ChannelID)
	}

	if _, err := h.svc.SubmitDetails(ctx, owner, id, validDetails()); err != nil {
		t.Fatalf("owner details: %v", err)
	}
	tr, err = h.svc.SubmitDetails(ctx, responder, id, validDetails())
	if err != nil {
		t.Fatalf("responder details: %v", err)
	}
	if tr.Request.Status != StatusFinalizing || !tr.Gate().Ready {
		t.Fatalf("expected finalizing and ready, got %s %+v", tr.Request.Status, tr.Gate())
	}

	tr, err = h.svc.Evaluate(ctx, responder, id)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	a := tr.Assessment
	if a == nil {
		t.Fatal("expected assessment")
	}
	if a.Overall != 8.2 || a.TaskComplexity != 100 || a.TimeCommitment != 0 || a.Feedback != "balanced trade" {
		t.Errorf("assessment not normalized: %+v", a)
	}
	if tr.Request.Status != StatusFinalizing {
		t.Errorf("evaluate must not change status, got %s", tr.Request.Status)
	}

	tr, err = h.svc.Confirm(ctx, owner, id)
	if err != nil || tr.Request.Status != StatusActive {
		t.Fatalf("confirm: %v %s", err, tr.Request.Status)
	}

	for _, p := range []Actor{owner, responder} {
		if _, err := h.svc.SubmitProof(ctx, p, id, proofFiles); err != nil {
			t.Fatalf("submit proof: %v", err)
		}
	}
	if _, err := h.svc.ApproveProof(ctx, owner, id); err != nil {
		t.Fatalf("owner approves: %v", err)
	}
	tr, err = h.svc.ApproveProof(ctx, responder, id)
	if err != nil {
		t.Fatalf("responder approves: %v", err)
	}
	if !tr.BothApproved() {
		t.Fatal("expected both approved")
	}
	if n := h.notes.count(EventReadyToRate); n != 1 {
		t.Errorf("expected one ready-to-rate event, got %d", n)
	}

	res, err := h.svc.SubmitRating(ctx, owner, id, 5, "great lessons")
	if err != nil {
		t.Fatalf("owner rating: %v", err)
	}
	if res.Completed || res.Trade.Request.Archived {
		t.Fatal("one rating must not complete the trade")
	}
	res, err = h.svc.SubmitRating(ctx, responder, id, 5, "")
	if err != nil {
		t.Fatalf("responder rating: %v", err)
	}
	if !res.Completed || res.Trade.Request.Status != StatusCompleted || !res.Trade.Request.Archived {
		t.Fatalf("expected completed and archived, got %+v", res.Trade.Request)
	}

	// 20 base + round(8.2*5) + 5 stars * 2
	const want = int64(71)
	if len(res.Progress) != 2 {
		t.Fatalf("expected progress for both participants, got %d", len(res.Progress))
	}
	for _, p := range res.Progress {
		if p.Awarded != want || p.Change.TotalAfter != want {
			t.Errorf("%s: expected %d xp, got %+v", p.UserID, want, p)
		}
		if !p.Change.LeveledUp || p.Change.After.Level != 2 || p.Change.After.XPInLevel != 21 {
			t.Errorf("%s: unexpected level change %+v", p.UserID, p.Change)
		}
		total, _ := h.ledger.Total(ctx, p.UserID)
		if total != want {
			t.Errorf("%s: ledger total %d", p.UserID, total)
		}
	}
	if len(h.observer.levelUps) != 2 {
		t.Errorf("expected two level-ups observed, got %v", h.observer.levelUps)
	}

	active, _ := h.svc.ListMine(ctx, owner, false)
	archived, _ := h.svc.ListMine(ctx, owner, true)
	if len(active) != 0 || len(archived) != 1 {
		t.Errorf("expected trade in archived set, active=%d archived=%d", len(active), len(archived))
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
	}{
		{"valid today", CreateInput{SkillNeeded: "Cooking", Deadline: deadline("2025-07-01")}, nil},
		{"empty skill", CreateInput{SkillNeeded: "   ", Deadline: deadline("2025-07-03")}, ErrValidation},
		{"past deadline", CreateInput{SkillNeeded: "Cooking", Deadline: deadline("2025-06-30")}, ErrValidation},
		{"missing deadline", CreateInput{SkillNeeded: "Cooking"}, ErrValidation},
		{"long description", CreateInput{SkillNeeded: "Cooking", Deadline: deadline("2025-07-03"), Description: string(make([]rune, MaxDescriptionLen+1))}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Create(context.Background(), owner, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	h := newHarness(t)
	if _, err := h.svc.Create(context.Background(), Actor{}, CreateInput{SkillNeeded: "x", Deadline: deadline("2025-07-03")}); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestExpressInterestRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	id := tr.Request.ID

	first := h.interest(t, id, responder)
	if _, _, err := h.svc.ExpressInterest(ctx, responder, id, "Baking"); !errors.Is(err, ErrDuplicateInterest) {
		t.Errorf("expected duplicate interest, got %v", err)
	}
	if !IsInformational(ErrDuplicateInterest) {
		t.Error("duplicate interest should be informational")
	}
	if _, _, err := h.svc.ExpressInterest(ctx, owner, id, "Baking"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for owner, got %v", err)
	}
	if _, _, err := h.svc.ExpressInterest(ctx, other, id, " "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for empty skill, got %v", err)
	}

	if _, err := h.svc.Decline(ctx, owner, first.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if _, _, err := h.svc.ExpressInterest(ctx, responder, id, "Baking"); err != nil {
		t.Errorf("re-expressing after decline should succeed, got %v", err)
	}

	late := NewService(h.store, WithClock(func() time.Time { return fixedNow().AddDate(0, 0, 3) }))
	if _, _, err := late.ExpressInterest(ctx, other, id, "Baking"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state past deadline, got %v", err)
	}
}

func TestDeclineIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	in := h.interest(t, tr.Request.ID, responder)

	first, err := h.svc.Decline(ctx, owner, in.ID)
	if err != nil {
		t.Fatalf("first decline: %v", err)
	}
	second, err := h.svc.Decline(ctx, owner, in.ID)
	if err != nil {
		t.Fatalf("second decline should succeed, got %v", err)
	}
	if first.Interest(in.ID).Status != InterestDeclined || second.Interest(in.ID).Status != InterestDeclined {
		t.Fatal("expected declined after both calls")
	}
	if n := h.notes.count(EventInterestDeclined); n != 1 {
		t.Errorf("expected one decline notification, got %d", n)
	}
	if _, err := h.svc.Decline(ctx, responder, in.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden for non-owner, got %v", err)
	}
}

func TestAcceptIsMutuallyExclusive(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d interests", n), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			tr := h.post(t)
			var ids []string
			for i := 0; i < n; i++ {
				in := h.interest(t, tr.Request.ID, Actor{UserID: fmt.Sprintf("r-%d", i)})
				ids = append(ids, in.ID)
			}
			tr, err := h.svc.Accept(ctx, owner, ids[n-1])
			if err != nil {
				t.Fatalf("accept: %v", err)
			}
			accepted, declined := 0, 0
			for _, in := range tr.Interests {
				switch in.Status {
				case InterestAccepted:
					accepted++
				case InterestDeclined:
					declined++
				}
			}
			if accepted != 1 || declined != n-1 {
				t.Errorf("expected 1 accepted and %d declined, got %d and %d", n-1, accepted, declined)
			}
			if n > 1 {
				if _, err := h.svc.Accept(ctx, owner, ids[0]); !errors.Is(err, ErrInvalidState) {
					t.Errorf("accepting a second interest should fail, got %v", err)
				}
			}
		})
	}
}

func TestAcceptRetryAndChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	in := h.interest(t, tr.Request.ID, responder)

	if _, err := h.svc.Accept(ctx, responder, in.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden for non-owner, got %v", err)
	}
	if _, err := h.svc.Accept(ctx, owner, in.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	again, err := h.svc.Accept(ctx, owner, in.ID)
	if err != nil {
		t.Fatalf("retried accept should succeed, got %v", err)
	}
	if again.Request.Status != StatusAccepted {
		t.Errorf("unexpected status %s", again.Request.Status)
	}
	if h.channels.opens != 1 {
		t.Errorf("expected channel opened once, got %d", h.channels.opens)
	}
	if _, err := h.svc.Accept(ctx, owner, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestChannelOpenFailureIsRecoverable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.channels.fail = true
	tr := h.post(t)
	in := h.interest(t, tr.Request.ID, responder)

	tr, err := h.svc.Accept(ctx, owner, in.ID)
	if err != nil {
		t.Fatalf("accept must succeed when messaging is down: %v", err)
	}
	if tr.Request.ChannelID != "" {
		t.Fatalf("expected no channel, got %q", tr.Request.ChannelID)
	}
	if _, err := h.svc.OpenChannel(ctx, responder, tr.Request.ID); !errors.Is(err, ErrNetwork) {
		t.Errorf("expected network error while down, got %v", err)
	}

	h.channels.fail = false
	id, err := h.svc.OpenChannel(ctx, responder, tr.Request.ID)
	if err != nil || id == "" {
		t.Fatalf("open channel: %q %v", id, err)
	}
	stored, _ := h.store.Get(ctx, tr.Request.ID)
	if stored.Request.ChannelID != id {
		t.Errorf("expected channel recorded, got %q", stored.Request.ChannelID)
	}
	if _, err := h.svc.OpenChannel(ctx, other, tr.Request.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden for outsider, got %v", err)
	}
}

func TestCancelAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr := h.post(t)
	pending := h.interest(t, tr.Request.ID, responder)
	if _, err := h.svc.Cancel(ctx, responder, tr.Request.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	tr, err := h.svc.Cancel(ctx, owner, tr.Request.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tr.Request.Status != StatusCancelled || tr.Interest(pending.ID).Status != InterestDeclined {
		t.Fatalf("expected cancelled with declined interest, got %s %s", tr.Request.Status, tr.Interest(pending.ID).Status)
	}
	if _, err := h.svc.Cancel(ctx, owner, tr.Request.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancel is terminal, got %v", err)
	}
	if err := h.svc.Delete(ctx, owner, tr.Request.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancelled request cannot be deleted, got %v", err)
	}

	fresh := h.post(t)
	if err := h.svc.Delete(ctx, owner, fresh.Request.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.store.Get(ctx, fresh.Request.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted, got %v", err)
	}

	activeID := h.active(t)
	if _, err := h.svc.Cancel(ctx, owner, activeID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("active trade cannot be cancelled, got %v", err)
	}
}

func TestDetailsGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	id := tr.Request.ID

	if _, err := h.svc.SubmitDetails(ctx, owner, id, validDetails()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("details before acceptance should fail, got %v", err)
	}
	in := h.interest(t, id, responder)
	if _, err := h.svc.Accept(ctx, owner, in.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	bad := []struct {
		name string
		mod  func(d *Details)
	}{
		{"missing mode", func(d *Details) { d.DeliveryMode = "" }},
		{"unknown level", func(d *Details) { d.SkillLevel = "guru" }},
		{"unknown type", func(d *Details) { d.RequestType = "barter" }},
		{"empty description", func(d *Details) { d.Description = "  " }},
		{"long description", func(d *Details) { d.Description = string(make([]rune, MaxDescriptionLen+1)) }},
		{"image without ref", func(d *Details) { d.ContextImage = &FileRef{Name: "a.png"} }},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			d := validDetails()
			tt.mod(&d)
			if _, err := h.svc.SubmitDetails(ctx, owner, id, d); !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := h.svc.SubmitDetails(ctx, stranger, id, validDetails()); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden for outsider, got %v", err)
	}
	upper := validDetails()
	upper.DeliveryMode = "HYBRID"
	tr, err := h.svc.SubmitDetails(ctx, owner, id, upper)
	if err != nil {
		t.Fatalf("owner details: %v", err)
	}
	if tr.Details[owner.UserID].Details.DeliveryMode != DeliveryHybrid {
		t.Errorf("expected normalized delivery mode, got %q", tr.Details[owner.UserID].Details.DeliveryMode)
	}
	if _, err := h.svc.SubmitDetails(ctx, owner, id, validDetails()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("expected already submitted, got %v", err)
	}
	gate, err := h.svc.DetailStatus(ctx, responder, id)
	if err != nil || gate.Ready || !gate.OwnerSubmitted || gate.PartnerSubmitted {
		t.Fatalf("unexpected gate %+v %v", gate, err)
	}
	if _, err := h.svc.Evaluate(ctx, owner, id); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected not ready, got %v", err)
	}

	if _, err := h.svc.SubmitDetails(ctx, responder, id, validDetails()); err != nil {
		t.Fatalf("responder details: %v", err)
	}
	gate, _ = h.svc.DetailStatus(ctx, owner, id)
	if !gate.Ready {
		t.Fatal("expected ready")
	}
	// Once ready, nothing but an evaluation reject makes the gate not ready.
	h.svc.SubmitDetails(ctx, owner, id, validDetails())
	h.svc.Confirm(ctx, owner, id)
	if gate, _ = h.svc.DetailStatus(ctx, owner, id); !gate.Ready {
		t.Fatal("gate went back to not ready")
	}

	tr, err = h.svc.RejectEvaluation(ctx, responder, id)
	if err != nil {
		t.Fatalf("reject evaluation: %v", err)
	}
	if tr.Request.Status != StatusAccepted || tr.Gate().OwnerSubmitted || tr.Gate().PartnerSubmitted || tr.Assessment != nil {
		t.Fatalf("expected details cleared, got %s %+v", tr.Request.Status, tr.Gate())
	}
	if _, err := h.svc.SubmitDetails(ctx, owner, id, validDetails()); err != nil {
		t.Errorf("resubmission after reject should succeed, got %v", err)
	}
}

func TestEvaluateAndConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	id := tr.Request.ID
	in := h.interest(t, id, responder)
	h.svc.Accept(ctx, owner, in.ID)
	h.svc.SubmitDetails(ctx, owner, id, validDetails())
	h.svc.SubmitDetails(ctx, responder, id, validDetails())

	if _, err := h.svc.Confirm(ctx, owner, id); !errors.Is(err, ErrNotReady) {
		t.Errorf("confirm before evaluation should fail, got %v", err)
	}

	h.scorer.err = errors.New("connection refused")
	if _, err := h.svc.Evaluate(ctx, owner, id); !errors.Is(err, ErrNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
	stored, _ := h.store.Get(ctx, id)
	if stored.Assessment != nil || stored.Request.Status != StatusFinalizing {
		t.Error("failed evaluation must leave state unchanged")
	}

	h.scorer.err = nil
	if _, err := h.svc.Evaluate(ctx, stranger, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := h.svc.Evaluate(ctx, owner, id); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := 0; i < 3; i++ {
		tr, err := h.svc.Confirm(ctx, responder, id)
		if err != nil {
			t.Fatalf("confirm #%d: %v", i+1, err)
		}
		if tr.Request.Status != StatusActive {
			t.Fatalf("expected active, got %s", tr.Request.Status)
		}
	}
	if n := h.notes.count(EventTradeActive); n != 1 {
		t.Errorf("expected one activation event, got %d", n)
	}
	if _, err := h.svc.RejectEvaluation(ctx, owner, id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reject after confirm should fail, got %v", err)
	}
	if _, err := h.svc.Evaluate(ctx, owner, id); !errors.Is(err, ErrNotReady) {
		t.Errorf("evaluate after confirm should fail, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Assessment
		want Assessment
	}{
		{"in range", Assessment{Overall: 7, TaskComplexity: 50, TimeCommitment: 20, SkillLevel: 80}, Assessment{Overall: 7, TaskComplexity: 50, TimeCommitment: 20, SkillLevel: 80}},
		{"above", Assessment{Overall: 11, TaskComplexity: 101, TimeCommitment: 500, SkillLevel: 100}, Assessment{Overall: 10, TaskComplexity: 100, TimeCommitment: 100, SkillLevel: 100}},
		{"below", Assessment{Overall: -1, TaskComplexity: -5, Feedback: " ok "}, Assessment{Overall: 0, Feedback: "ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestProofExchange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.active(t)

	if _, err := h.svc.ApproveProof(ctx, owner, id); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("approving a not-submitted side must fail, got %v", err)
	}
	if _, err := h.svc.RejectProof(ctx, owner, id); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("rejecting a not-submitted side must fail, got %v", err)
	}
	if _, err := h.svc.SubmitProof(ctx, responder, id, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for no files, got %v", err)
	}
	if _, err := h.svc.SubmitProof(ctx, responder, id, []FileRef{{Name: "x"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for file without ref, got %v", err)
	}

	if _, err := h.svc.SubmitProof(ctx, responder, id, proofFiles); err != nil {
		t.Fatalf("submit: %v", err)
	}
	tr, err := h.svc.SubmitProof(ctx, responder, id, append(proofFiles, FileRef{Name: "b.png", Ref: "proofs/b.png", IsImage: true}))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(tr.Proofs[responder.UserID].Files) != 2 {
		t.Errorf("expected resubmission to replace files")
	}

	tr, err = h.svc.RejectProof(ctx, owner, id)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if tr.ProofState(responder.UserID) != ProofNotSubmitted || len(tr.Proofs[responder.UserID].Files) != 0 {
		t.Fatalf("expected reset side, got %+v", tr.Proofs[responder.UserID])
	}

	h.svc.SubmitProof(ctx, responder, id, proofFiles)
	if _, err := h.svc.ApproveProof(ctx, owner, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := h.svc.ApproveProof(ctx, owner, id); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("expected already approved, got %v", err)
	}
	if _, err := h.svc.SubmitProof(ctx, responder, id, proofFiles); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("approved side is immutable, got %v", err)
	}

	// An approval may be revoked while nobody has rated yet.
	tr, err = h.svc.RejectProof(ctx, owner, id)
	if err != nil {
		t.Fatalf("revoke approval: %v", err)
	}
	if tr.ProofState(responder.UserID) != ProofNotSubmitted {
		t.Errorf("expected revoked approval, got %s", tr.ProofState(responder.UserID))
	}
}

func TestCanReadFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.active(t)
	img := &FileRef{Name: "kit.png", Ref: "owner_kit.png", IsImage: true}
	if _, err := h.store.Update(ctx, id, func(tr *Trade) error {
		d := tr.Details[owner.UserID]
		d.Details.ContextImage = img
		tr.Details[owner.UserID] = d
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.SubmitProof(ctx, responder, id, proofFiles); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		actor Actor
		ref   string
		want  error
	}{
		{"partner reads proof", owner, proofFiles[0].Ref, nil},
		{"submitter reads own proof", responder, proofFiles[0].Ref, nil},
		{"partner reads context image", responder, img.Ref, nil},
		{"outsider", stranger, proofFiles[0].Ref, ErrForbidden},
		{"unattached ref", owner, "owner_other.png", ErrForbidden},
		{"anonymous", Actor{}, proofFiles[0].Ref, ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.svc.CanReadFile(ctx, tt.actor, tt.ref)
			if !errors.Is(err, tt.want) {
				t.Errorf("CanReadFile = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRejectApprovedAfterRating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.approved(t)

	if _, err := h.svc.SubmitRating(ctx, owner, id, 4, ""); err != nil {
		t.Fatalf("rating: %v", err)
	}
	if _, err := h.svc.RejectProof(ctx, responder, id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state once rating started, got %v", err)
	}
	tr, _ := h.store.Get(ctx, id)
	if !tr.BothApproved() {
		t.Error("rated trade lost its approvals")
	}
}

func TestRatingPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.active(t)

	if _, err := h.svc.SubmitRating(ctx, owner, id, 5, ""); !errors.Is(err, ErrNotApproved) {
		t.Errorf("expected not approved, got %v", err)
	}
	h.svc.SubmitProof(ctx, owner, id, proofFiles)
	h.svc.SubmitProof(ctx, responder, id, proofFiles)
	h.svc.ApproveProof(ctx, responder, id)
	if _, err := h.svc.SubmitRating(ctx, owner, id, 5, ""); !errors.Is(err, ErrNotApproved) {
		t.Errorf("one approval is not enough, got %v", err)
	}
	h.svc.ApproveProof(ctx, owner, id)

	tests := []struct {
		name     string
		score    int
		feedback string
	}{
		{"zero", 0, ""},
		{"six", 6, ""},
		{"long feedback", 3, string(make([]rune, MaxFeedbackLen+1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.SubmitRating(ctx, owner, id, tt.score, tt.feedback); !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	res, err := h.svc.SubmitRating(ctx, owner, id, 3, "fine")
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if r := res.Trade.Ratings[owner.UserID]; r.RateeID != responder.UserID {
		t.Errorf("rating must target the counterpart, got %+v", r)
	}
	if _, err := h.svc.SubmitRating(ctx, owner, id, 4, ""); !errors.Is(err, ErrAlreadyRated) {
		t.Errorf("expected already rated, got %v", err)
	}
	if _, err := h.svc.SubmitRating(ctx, stranger, id, 4, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestBothRatedImpliesBothApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.approved(t)

	h.svc.SubmitRating(ctx, owner, id, 5, "")
	h.svc.RejectProof(ctx, owner, id)
	h.svc.SubmitRating(ctx, responder, id, 5, "")

	tr, _ := h.store.Get(ctx, id)
	if tr.BothRated() && !tr.BothApproved() {
		t.Fatal("both rated without both approved")
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.approved(t)

	if _, err := h.svc.Settle(ctx, id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state before completion, got %v", err)
	}
	h.svc.SubmitRating(ctx, owner, id, 4, "")
	if _, err := h.svc.SubmitRating(ctx, responder, id, 2, ""); err != nil {
		t.Fatalf("rating: %v", err)
	}
	before, _ := h.ledger.Total(ctx, responder.UserID)

	progress, err := h.svc.Settle(ctx, id)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	after, _ := h.ledger.Total(ctx, responder.UserID)
	if before != after {
		t.Errorf("settle re-applied awards: %d -> %d", before, after)
	}
	for _, p := range progress {
		if p.Awarded != 0 || p.Change.LeveledUp {
			t.Errorf("expected no-op settle, got %+v", p)
		}
	}
	// responder got 4 stars, owner got 2.
	owners, _ := h.ledger.Total(ctx, owner.UserID)
	if after-owners != 4 {
		t.Errorf("expected rating bonus difference of 4, got %d", after-owners)
	}
}

func TestGetVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	if _, err := h.svc.Get(ctx, stranger, tr.Request.ID); err != nil {
		t.Errorf("posted requests are public, got %v", err)
	}
	in := h.interest(t, tr.Request.ID, responder)
	h.interest(t, tr.Request.ID, other)
	h.svc.Accept(ctx, owner, in.ID)

	if _, err := h.svc.Get(ctx, stranger, tr.Request.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := h.svc.Get(ctx, other, tr.Request.ID); err != nil {
		t.Errorf("a declined responder can still read the request, got %v", err)
	}
	if _, err := h.svc.Get(ctx, owner, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, skill := range []string{"Guitar", "Piano", "Bass guitar"} {
		if _, err := h.svc.Create(ctx, owner, CreateInput{SkillNeeded: skill, Deadline: deadline("2025-07-05")}); err != nil {
			t.Fatal(err)
		}
	}
	all, err := h.svc.ListOpen(ctx, ListFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 open requests, got %d %v", len(all), err)
	}
	guitars, _ := h.svc.ListOpen(ctx, ListFilter{Skill: "guitar"})
	if len(guitars) != 2 {
		t.Errorf("expected 2 guitar requests, got %d", len(guitars))
	}
	paged, _ := h.svc.ListOpen(ctx, ListFilter{Limit: 2, Offset: 2})
	if len(paged) != 1 {
		t.Errorf("expected 1 request on second page, got %d", len(paged))
	}
}

func TestObserverOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.post(t)
	h.svc.Delete(ctx, responder, tr.Request.ID)

	if h.observer.outcomes["create/ok"] != 1 {
		t.Errorf("expected create/ok, got %v", h.observer.outcomes)
	}
	if h.observer.outcomes["delete/forbidden"] != 1 {
		t.Errorf("expected delete/forbidden, got %v", h.observer.outcomes)
	}
}
