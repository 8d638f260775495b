package trade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Evaluate scores a READY trade and stores the normalized assessment. It
// does not change the lifecycle status.
func (s *Service) Evaluate(ctx context.Context, actor Actor, requestID string) (t *Trade, err error) {
	defer s.observe("evaluate", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.scorer == nil {
		return nil, fmt.Errorf("%w: no scorer configured", ErrNetwork)
	}
	cur, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(cur, actor); err != nil {
		return nil, err
	}
	if cur.Request.Status != StatusFinalizing || !cur.Gate().Ready {
		return nil, ErrNotReady
	}

	raw, err := s.scorer.Score(ctx, EvaluationInput{
		RequestID:   cur.Request.ID,
		SkillNeeded: cur.Request.SkillNeeded,
		Owner:       cur.Details[cur.Request.OwnerID].Details,
		Partner:     cur.Details[cur.Request.PartnerID].Details,
	})
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	a := Normalize(raw)
	a.EvaluatedAt = s.now().UTC()

	// Details may have been cleared by a concurrent reject while scoring.
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if t.Request.Status != StatusFinalizing || !t.Gate().Ready {
			return ErrNotReady
		}
		t.Assessment = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Event{
		Type:       EventEvaluationDone,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{t.Counterpart(actor.UserID)},
		Title:      "Your trade has been evaluated",
		Body:       fmt.Sprintf("Overall score %.1f/10", a.Overall),
	})
	return t, nil
}

// Normalize clamps an assessment into its documented ranges.
func Normalize(a Assessment) Assessment {
	a.Overall = clamp(a.Overall, 0, 10)
	a.TaskComplexity = clamp(a.TaskComplexity, 0, 100)
	a.TimeCommitment = clamp(a.TimeCommitment, 0, 100)
	a.SkillLevel = clamp(a.SkillLevel, 0, 100)
	a.Feedback = strings.TrimSpace(a.Feedback)
	return a
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Confirm accepts the stored assessment and moves FINALIZING to ACTIVE.
// Confirming a trade that is already ACTIVE or later is a no-op.
func (s *Service) Confirm(ctx context.Context, actor Actor, requestID string) (t *Trade, err error) {
	defer s.observe("confirm", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var changed bool
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		switch t.Request.Status {
		case StatusActive, StatusCompleted:
			return errNoop
		case StatusFinalizing:
		default:
			return fmt.Errorf("%w: cannot confirm a %s trade", ErrInvalidState, t.Request.Status)
		}
		if t.Assessment == nil {
			return fmt.Errorf("%w: trade has not been evaluated", ErrNotReady)
		}
		t.Request.Status = StatusActive
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify(ctx, Event{
			Type:       EventTradeActive,
			RequestID:  requestID,
			ActorID:    actor.UserID,
			Recipients: t.Participants(),
			Title:      "Your trade is now active",
			Body:       "Exchange your skills and submit proof when done.",
		})
	}
	return t, nil
}

// RejectEvaluation sends a FINALIZING trade back to ACCEPTED and clears both
// detail submissions and the assessment so they can be resubmitted.
func (s *Service) RejectEvaluation(ctx context.Context, actor Actor, requestID string) (t *Trade, err error) {
	defer s.observe("reject_evaluation", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		if t.Request.Status != StatusFinalizing {
			return fmt.Errorf("%w: cannot reject evaluation of a %s trade", ErrInvalidState, t.Request.Status)
		}
		t.Request.Status = StatusAccepted
		t.Details = make(map[string]DetailSubmission)
		t.Assessment = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Event{
		Type:       EventDetailsReopened,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{t.Counterpart(actor.UserID)},
		Title:      "Trade details need to be resubmitted",
		Body:       "The evaluation was rejected.",
	})
	return t, nil
}
