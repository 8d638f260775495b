package trade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateInput is the payload for posting a request.
type CreateInput struct {
	SkillNeeded string    `json:"skill_needed"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
}

// Create posts a new request owned by the actor.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (t *Trade, err error) {
	defer s.observe("create", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	skill := strings.TrimSpace(in.SkillNeeded)
	if skill == "" {
		return nil, fmt.Errorf("%w: skill needed is required", ErrValidation)
	}
	if in.Deadline.IsZero() {
		return nil, fmt.Errorf("%w: deadline is required", ErrValidation)
	}
	deadline := dateOf(in.Deadline)
	if deadline.Before(s.today()) {
		return nil, fmt.Errorf("%w: deadline %s is in the past", ErrValidation, deadline.Format(time.DateOnly))
	}
	if len([]rune(in.Description)) > MaxDescriptionLen {
		return nil, fmt.Errorf("%w: description longer than %d characters", ErrValidation, MaxDescriptionLen)
	}

	now := s.now().UTC()
	t = &Trade{
		Request: Request{
			ID:          uuid.New().String(),
			OwnerID:     actor.UserID,
			SkillNeeded: skill,
			Description: strings.TrimSpace(in.Description),
			Deadline:    deadline,
			Status:      StatusPosted,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	t.ensureMaps()
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info().Str("request_id", t.Request.ID).Str("owner_id", actor.UserID).Msg("request posted")
	return t.Clone(), nil
}

// Cancel moves a POSTED or ACCEPTED request to CANCELLED. Pending interests
// are declined in the same save.
func (s *Service) Cancel(ctx context.Context, actor Actor, requestID string) (t *Trade, err error) {
	defer s.observe("cancel", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var notifyIDs []string
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireOwner(t, actor); err != nil {
			return err
		}
		switch t.Request.Status {
		case StatusPosted, StatusAccepted:
		default:
			return fmt.Errorf("%w: cannot cancel a %s request", ErrInvalidState, t.Request.Status)
		}
		now := s.now().UTC()
		for i := range t.Interests {
			in := &t.Interests[i]
			switch in.Status {
			case InterestPending:
				in.Status = InterestDeclined
				in.UpdatedAt = now
				notifyIDs = append(notifyIDs, in.ResponderID)
			case InterestAccepted:
				notifyIDs = append(notifyIDs, in.ResponderID)
			}
		}
		t.Request.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, Event{
		Type:       EventRequestCancelled,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: notifyIDs,
		Title:      "A trade request you responded to was cancelled",
		Body:       t.Request.SkillNeeded,
	})
	return t, nil
}

// Delete removes a request that has not accepted any interest yet.
func (s *Service) Delete(ctx context.Context, actor Actor, requestID string) (err error) {
	defer s.observe("delete", &err)
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.store.Delete(ctx, requestID, func(t *Trade) error {
		if err := requireOwner(t, actor); err != nil {
			return err
		}
		if t.Request.Status != StatusPosted {
			return fmt.Errorf("%w: only posted requests can be deleted", ErrInvalidState)
		}
		return nil
	})
}
