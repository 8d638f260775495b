package trade

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ExpressInterest records a PENDING offer from the actor.
func (s *Service) ExpressInterest(ctx context.Context, actor Actor, requestID, skillOffered string) (t *Trade, in *Interest, err error) {
	defer s.observe("express_interest", &err)
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	skill := strings.TrimSpace(skillOffered)
	if skill == "" {
		return nil, nil, fmt.Errorf("%w: offered skill is required", ErrValidation)
	}

	var created Interest
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if t.Request.OwnerID == actor.UserID {
			return fmt.Errorf("%w: cannot respond to your own request", ErrValidation)
		}
		if t.Request.Status != StatusPosted {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, t.Request.Status)
		}
		if t.Request.Deadline.Before(s.today()) {
			return fmt.Errorf("%w: request deadline has passed", ErrInvalidState)
		}
		for _, existing := range t.Interests {
			if existing.ResponderID == actor.UserID && existing.Status != InterestDeclined {
				return ErrDuplicateInterest
			}
		}
		now := s.now().UTC()
		created = Interest{
			ID:           uuid.New().String(),
			RequestID:    t.Request.ID,
			ResponderID:  actor.UserID,
			SkillOffered: skill,
			Status:       InterestPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		t.Interests = append(t.Interests, created)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.notify(ctx, Event{
		Type:       EventInterestNew,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{t.Request.OwnerID},
		Title:      "New interest in your trade request",
		Body:       skill,
	})
	return t, &created, nil
}

// Accept accepts one interest and declines every other pending sibling in a
// single save. Accepting the already-accepted interest again is a no-op.
func (s *Service) Accept(ctx context.Context, actor Actor, interestID string) (t *Trade, err error) {
	defer s.observe("accept", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	requestID, err := s.store.RequestIDForInterest(ctx, interestID)
	if err != nil {
		return nil, err
	}

	var declined []string
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireOwner(t, actor); err != nil {
			return err
		}
		target := t.Interest(interestID)
		if target == nil {
			return ErrNotFound
		}
		if target.Status == InterestAccepted {
			return errNoop
		}
		if t.Request.Status != StatusPosted {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, t.Request.Status)
		}
		if target.Status != InterestPending {
			return fmt.Errorf("%w: interest is %s", ErrInvalidState, target.Status)
		}

		now := s.now().UTC()
		for i := range t.Interests {
			in := &t.Interests[i]
			switch {
			case in.ID == interestID:
				in.Status = InterestAccepted
				in.UpdatedAt = now
			case in.Status == InterestPending:
				in.Status = InterestDeclined
				in.UpdatedAt = now
				declined = append(declined, in.ResponderID)
			}
		}
		t.Request.Status = StatusAccepted
		t.Request.PartnerID = target.ResponderID
		t.Request.InterestID = target.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t.Request.ChannelID == "" {
		t = s.openChannel(ctx, t)
	}

	s.notify(ctx, Event{
		Type:       EventInterestAccepted,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{t.Request.PartnerID},
		Title:      "Your interest was accepted",
		Body:       t.Request.SkillNeeded,
	})
	s.notify(ctx, Event{
		Type:       EventInterestDeclined,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: declined,
		Title:      "The request owner chose another offer",
		Body:       t.Request.SkillNeeded,
	})
	return t, nil
}

// OpenChannel returns the trade's conversation id, opening it when the
// accept-time attempt did not complete.
func (s *Service) OpenChannel(ctx context.Context, actor Actor, requestID string) (string, error) {
	if err := requireActor(actor); err != nil {
		return "", err
	}
	t, err := s.store.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	if err := requireParticipant(t, actor); err != nil {
		return "", err
	}
	if t.Request.ChannelID == "" {
		t = s.openChannel(ctx, t)
	}
	if t.Request.ChannelID == "" {
		return "", fmt.Errorf("%w: messaging channel unavailable", ErrNetwork)
	}
	return t.Request.ChannelID, nil
}

// openChannel is best effort: failures are logged and the trade is returned
// without a channel id.
func (s *Service) openChannel(ctx context.Context, t *Trade) *Trade {
	if s.channels == nil {
		return t
	}
	id, err := s.channels.Open(ctx, t.Request.ID, t.Request.OwnerID, t.Request.PartnerID)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", t.Request.ID).Msg("open channel failed")
		return t
	}
	updated, err := s.store.Update(ctx, t.Request.ID, func(t *Trade) error {
		t.Request.ChannelID = id
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", t.Request.ID).Msg("record channel failed")
		t.Request.ChannelID = id
		return t
	}
	return updated
}

// Decline declines a pending interest. Declining an already-declined interest
// succeeds without writing anything.
func (s *Service) Decline(ctx context.Context, actor Actor, interestID string) (t *Trade, err error) {
	defer s.observe("decline", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	requestID, err := s.store.RequestIDForInterest(ctx, interestID)
	if err != nil {
		return nil, err
	}

	var responder string
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireOwner(t, actor); err != nil {
			return err
		}
		target := t.Interest(interestID)
		if target == nil {
			return ErrNotFound
		}
		switch target.Status {
		case InterestDeclined:
			return errNoop
		case InterestAccepted:
			return fmt.Errorf("%w: interest already accepted", ErrInvalidState)
		}
		target.Status = InterestDeclined
		target.UpdatedAt = s.now().UTC()
		responder = target.ResponderID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if responder != "" {
		s.notify(ctx, Event{
			Type:       EventInterestDeclined,
			RequestID:  requestID,
			ActorID:    actor.UserID,
			Recipients: []string{responder},
			Title:      "Your interest was declined",
			Body:       t.Request.SkillNeeded,
		})
	}
	return t, nil
}
