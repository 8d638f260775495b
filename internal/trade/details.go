package trade

import (
	"context"
	"fmt"
	"strings"
)

// GateStatus is the detail finalization gate as seen by dependents.
type GateStatus struct {
	OwnerSubmitted   bool `json:"owner_submitted"`
	PartnerSubmitted bool `json:"partner_submitted"`
	Ready            bool `json:"ready"`
}

// Gate derives the gate status from the aggregate.
func (t *Trade) Gate() GateStatus {
	g := GateStatus{
		OwnerSubmitted: t.Details[t.Request.OwnerID].Submitted,
	}
	if t.Request.PartnerID != "" {
		g.PartnerSubmitted = t.Details[t.Request.PartnerID].Submitted
	}
	g.Ready = g.OwnerSubmitted && g.PartnerSubmitted
	return g
}

// SubmitDetails records the actor's write-once details. The second
// submission moves the request to FINALIZING.
func (s *Service) SubmitDetails(ctx context.Context, actor Actor, requestID string, d Details) (t *Trade, err error) {
	defer s.observe("submit_details", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	d.Description = strings.TrimSpace(d.Description)
	d.DeliveryMode = DeliveryMode(strings.ToLower(string(d.DeliveryMode)))
	d.SkillLevel = SkillLevel(strings.ToLower(string(d.SkillLevel)))
	d.RequestType = RequestType(strings.ToLower(string(d.RequestType)))
	if err := s.validate.Struct(d); err != nil {
		return nil, s.validationError(err)
	}

	var ready bool
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		if t.Details[actor.UserID].Submitted {
			return ErrAlreadySubmitted
		}
		switch t.Request.Status {
		case StatusAccepted, StatusFinalizing:
		default:
			return fmt.Errorf("%w: details are locked once the trade is %s", ErrInvalidState, t.Request.Status)
		}
		t.ensureMaps()
		now := s.now().UTC()
		t.Details[actor.UserID] = DetailSubmission{
			Submitted:   true,
			Details:     d,
			SubmittedAt: &now,
		}
		if t.Gate().Ready {
			t.Request.Status = StatusFinalizing
			ready = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ready {
		s.notify(ctx, Event{
			Type:       EventDetailsReady,
			RequestID:  requestID,
			ActorID:    actor.UserID,
			Recipients: t.Participants(),
			Title:      "Both sides submitted their details",
			Body:       "The trade is ready for evaluation.",
		})
	}
	return t, nil
}

// DetailStatus returns the gate status for a participant.
func (s *Service) DetailStatus(ctx context.Context, actor Actor, requestID string) (GateStatus, error) {
	if err := requireActor(actor); err != nil {
		return GateStatus{}, err
	}
	t, err := s.store.Get(ctx, requestID)
	if err != nil {
		return GateStatus{}, err
	}
	if err := requireParticipant(t, actor); err != nil {
		return GateStatus{}, err
	}
	return t.Gate(), nil
}
