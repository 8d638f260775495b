// Package trade implements the trade request lifecycle: interest, acceptance,
// detail finalization, evaluation, proof exchange, rating and XP award.
//
// Every operation takes the calling Actor explicitly, performs a single atomic
// load-mutate-save through the Store, and returns a private copy of the
// resulting aggregate. Side effects on collaborators (messaging channel,
// notifications, XP ledger) run only after the save has committed.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/progression"
)

// EvaluationInput is what the scoring collaborator sees.
type EvaluationInput struct {
	RequestID   string  `json:"request_id"`
	SkillNeeded string  `json:"skill_needed"`
	Owner       Details `json:"owner"`
	Partner     Details `json:"partner"`
}

// Scorer is the external assessment service. Its model is opaque.
type Scorer interface {
	Score(ctx context.Context, in EvaluationInput) (Assessment, error)
}

// ChannelOpener opens (or returns the existing) conversation for a request.
type ChannelOpener interface {
	Open(ctx context.Context, requestID, userA, userB string) (string, error)
}

// Notifier delivers trade events to participants. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Awarder supplies per-participant XP for a completed trade.
type Awarder interface {
	Award(ctx context.Context, t *Trade) (map[string]int64, error)
}

// Observer receives transition outcomes for metrics.
type Observer interface {
	ObserveTransition(op, outcome string)
	ObserveLevelUp(level int)
}

// Service runs lifecycle transitions against a Store.
type Service struct {
	store    Store
	scorer   Scorer
	channels ChannelOpener
	notifier Notifier
	awarder  Awarder
	ledger   progression.Ledger
	table    progression.Table
	observer Observer
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithScorer(s Scorer) Option                { return func(svc *Service) { svc.scorer = s } }
func WithChannels(c ChannelOpener) Option       { return func(svc *Service) { svc.channels = c } }
func WithNotifier(n Notifier) Option            { return func(svc *Service) { svc.notifier = n } }
func WithAwarder(a Awarder) Option              { return func(svc *Service) { svc.awarder = a } }
func WithLedger(l progression.Ledger) Option    { return func(svc *Service) { svc.ledger = l } }
func WithLevelTable(t progression.Table) Option { return func(svc *Service) { svc.table = t } }
func WithObserver(o Observer) Option            { return func(svc *Service) { svc.observer = o } }
func WithClock(now func() time.Time) Option     { return func(svc *Service) { svc.now = now } }

// NewService builds a Service. Without options it uses an in-memory ledger,
// the default level table and an assessment-based awarder.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		awarder:  AssessmentAwarder{Base: 20},
		ledger:   progression.NewMemoryLedger(),
		table:    progression.DefaultTable(),
		validate: validator.New(),
		now:      time.Now,
		log:      log.With().Str("component", "trade").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LevelTable exposes the configured table for presentation layers.
func (s *Service) LevelTable() progression.Table { return s.table }

// Get returns the trade if the actor may see it. Open requests are visible
// to everyone; anything past POSTED only to participants and responders.
func (s *Service) Get(ctx context.Context, actor Actor, requestID string) (*Trade, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	t, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if t.Request.Status != StatusPosted && !t.IsParticipant(actor.UserID) && !hasInterestFrom(t, actor.UserID) {
		return nil, ErrForbidden
	}
	return t, nil
}

// ListOpen returns POSTED requests for browsing.
func (s *Service) ListOpen(ctx context.Context, f ListFilter) ([]*Trade, error) {
	if f.Limit <= 0 || f.Limit > 50 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListOpen(ctx, f)
}

// ListMine returns the actor's trades; archived selects the completed set.
func (s *Service) ListMine(ctx context.Context, actor Actor, archived bool) ([]*Trade, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.store.ListForUser(ctx, actor.UserID, archived)
}

// errNoop marks an idempotent repeat: nothing is written and the current
// state is returned as success.
var errNoop = errors.New("no change")

// mutate wraps Store.Update, turning errNoop into a successful read.
func (s *Service) mutate(ctx context.Context, id string, fn func(t *Trade) error) (*Trade, error) {
	var unchanged *Trade
	t, err := s.store.Update(ctx, id, func(t *Trade) error {
		err := fn(t)
		if errors.Is(err, errNoop) {
			unchanged = t.Clone()
		}
		return err
	})
	if errors.Is(err, errNoop) {
		return unchanged, nil
	}
	return t, err
}

func (s *Service) observe(op string, err *error) {
	if s.observer == nil {
		return
	}
	outcome := "ok"
	if *err != nil {
		outcome = Code(*err)
	}
	s.observer.ObserveTransition(op, outcome)
}

func (s *Service) notify(ctx context.Context, ev Event) {
	if s.notifier == nil || len(ev.Recipients) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Str("request_id", ev.RequestID).Msg("notify failed")
	}
}

func (s *Service) today() time.Time {
	return dateOf(s.now())
}

func requireActor(a Actor) error {
	if a.UserID == "" {
		return ErrAuthentication
	}
	return nil
}

func requireParticipant(t *Trade, a Actor) error {
	if !t.IsParticipant(a.UserID) {
		return ErrForbidden
	}
	if t.Request.PartnerID == "" {
		return fmt.Errorf("%w: request has no accepted partner", ErrInvalidState)
	}
	return nil
}

func requireOwner(t *Trade, a Actor) error {
	if t.Request.OwnerID != a.UserID {
		return fmt.Errorf("%w: only the request owner may do this", ErrForbidden)
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Errorf("%w: %s failed %s", ErrValidation, f.Field(), f.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
