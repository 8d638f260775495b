package trade

import (
	"context"
	"fmt"
	"strings"

	"github.com/sudo-init-do/skillswap/internal/progression"
)

// ParticipantProgress is one participant's XP movement on completion.
type ParticipantProgress struct {
	UserID  string             `json:"user_id"`
	Awarded int64              `json:"awarded"`
	Change  progression.Change `json:"change"`
}

// RatingResult is returned by SubmitRating. Progress is only populated by the
// rating that completes the trade.
type RatingResult struct {
	Trade     *Trade                `json:"trade"`
	Completed bool                  `json:"completed"`
	Progress  []ParticipantProgress `json:"progress,omitempty"`
}

// SubmitRating rates the counterpart. The second rating completes and
// archives the trade, then XP is awarded to both participants.
func (s *Service) SubmitRating(ctx context.Context, actor Actor, requestID string, score int, feedback string) (res *RatingResult, err error) {
	defer s.observe("submit_rating", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("%w: score must be between 1 and 5", ErrValidation)
	}
	feedback = strings.TrimSpace(feedback)
	if len([]rune(feedback)) > MaxFeedbackLen {
		return nil, fmt.Errorf("%w: feedback longer than %d characters", ErrValidation, MaxFeedbackLen)
	}

	var completed bool
	t, err := s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		if _, ok := t.Ratings[actor.UserID]; ok {
			return ErrAlreadyRated
		}
		if t.Request.Status != StatusActive {
			return fmt.Errorf("%w: cannot rate a %s trade", ErrInvalidState, t.Request.Status)
		}
		if !t.BothApproved() {
			return ErrNotApproved
		}
		t.ensureMaps()
		now := s.now().UTC()
		t.Ratings[actor.UserID] = Rating{
			RaterID:     actor.UserID,
			RateeID:     t.Counterpart(actor.UserID),
			Score:       score,
			Feedback:    feedback,
			SubmittedAt: now,
		}
		if t.BothRated() {
			t.Request.Status = StatusCompleted
			t.Request.Archived = true
			t.Request.CompletedAt = &now
			completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res = &RatingResult{Trade: t, Completed: completed}
	if !completed {
		s.notify(ctx, Event{
			Type:       EventReadyToRate,
			RequestID:  requestID,
			ActorID:    actor.UserID,
			Recipients: []string{t.Counterpart(actor.UserID)},
			Title:      "Your partner rated the trade",
			Body:       "Submit your rating to complete it.",
		})
		return res, nil
	}

	res.Progress, err = s.settle(ctx, t)
	if err != nil {
		// The trade is already completed; Settle can be retried safely.
		s.log.Error().Err(err).Str("request_id", requestID).Msg("xp award failed")
		err = nil
	}
	s.notify(ctx, Event{
		Type:       EventTradeCompleted,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: t.Participants(),
		Title:      "Trade completed",
		Body:       t.Request.SkillNeeded,
	})
	return res, nil
}

// Settle applies completion XP for a COMPLETED trade. Awards already applied
// are not applied again, so it is safe to call repeatedly.
func (s *Service) Settle(ctx context.Context, requestID string) ([]ParticipantProgress, error) {
	t, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if t.Request.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: trade is %s", ErrInvalidState, t.Request.Status)
	}
	return s.settle(ctx, t)
}

func (s *Service) settle(ctx context.Context, t *Trade) ([]ParticipantProgress, error) {
	if s.awarder == nil || s.ledger == nil {
		return nil, nil
	}
	amounts, err := s.awarder.Award(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("award: %w", err)
	}
	var out []ParticipantProgress
	for _, userID := range t.Participants() {
		amount := amounts[userID]
		before, after, applied, err := s.ledger.Apply(ctx, progression.Award{
			UserID:    userID,
			RequestID: t.Request.ID,
			Amount:    amount,
			Reason:    "trade completed: " + t.Request.SkillNeeded,
		})
		if err != nil {
			return out, fmt.Errorf("apply award for %s: %w", userID, err)
		}
		if !applied {
			amount = 0
		}
		change := s.table.Change(before, after)
		if change.LeveledUp && s.observer != nil {
			s.observer.ObserveLevelUp(change.After.Level)
		}
		out = append(out, ParticipantProgress{UserID: userID, Awarded: amount, Change: change})
	}
	return out, nil
}
