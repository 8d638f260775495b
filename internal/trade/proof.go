package trade

import (
	"context"
	"fmt"
)

// SubmitProof stores the actor's proof files. A SUBMITTED side may be
// resubmitted; an APPROVED side is immutable.
func (s *Service) SubmitProof(ctx context.Context, actor Actor, requestID string, files []FileRef) (t *Trade, err error) {
	defer s.observe("submit_proof", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one proof file is required", ErrValidation)
	}
	for i := range files {
		if err := s.validate.Struct(files[i]); err != nil {
			return nil, s.validationError(err)
		}
	}

	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		if t.Request.Status != StatusActive {
			return fmt.Errorf("%w: proof can only be submitted on an active trade", ErrInvalidState)
		}
		if t.ProofState(actor.UserID) == ProofApproved {
			return ErrAlreadyApproved
		}
		t.ensureMaps()
		now := s.now().UTC()
		t.Proofs[actor.UserID] = Proof{
			State:     ProofSubmitted,
			Files:     append([]FileRef(nil), files...),
			UpdatedAt: &now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Event{
		Type:       EventProofSubmitted,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{t.Counterpart(actor.UserID)},
		Title:      "Your partner submitted proof",
		Body:       "Review it and approve or reject.",
	})
	return t, nil
}

// CanReadFile allows a download of ref when it is attached to a trade the
// actor participates in, archived trades included.
func (s *Service) CanReadFile(ctx context.Context, actor Actor, ref string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	for _, archived := range []bool{false, true} {
		trades, err := s.store.ListForUser(ctx, actor.UserID, archived)
		if err != nil {
			return err
		}
		for _, t := range trades {
			if t.IsParticipant(actor.UserID) && t.References(ref) {
				return nil
			}
		}
	}
	return ErrForbidden
}

// ApproveProof approves the counterpart's SUBMITTED proof.
func (s *Service) ApproveProof(ctx context.Context, actor Actor, requestID string) (t *Trade, err error) {
	defer s.observe("approve_proof", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var target string
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		if t.Request.Status != StatusActive {
			return fmt.Errorf("%w: proof can only be approved on an active trade", ErrInvalidState)
		}
		target = t.Counterpart(actor.UserID)
		switch t.ProofState(target) {
		case ProofApproved:
			return ErrAlreadyApproved
		case ProofNotSubmitted:
			return ErrNotSubmitted
		}
		t.ensureMaps()
		now := s.now().UTC()
		p := t.Proofs[target]
		p.State = ProofApproved
		p.UpdatedAt = &now
		t.Proofs[target] = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, Event{
		Type:       EventProofApproved,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{target},
		Title:      "Your proof was approved",
	})
	if t.BothApproved() {
		s.notify(ctx, Event{
			Type:       EventReadyToRate,
			RequestID:  requestID,
			ActorID:    actor.UserID,
			Recipients: t.Participants(),
			Title:      "Both proofs approved",
			Body:       "You can now rate your trade partner.",
		})
	}
	return t, nil
}

// RejectProof resets the counterpart's side to NOT_SUBMITTED and drops its
// files. An approved side can only be revoked until the first rating exists.
func (s *Service) RejectProof(ctx context.Context, actor Actor, requestID string) (t *Trade, err error) {
	defer s.observe("reject_proof", &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var target string
	t, err = s.mutate(ctx, requestID, func(t *Trade) error {
		if err := requireParticipant(t, actor); err != nil {
			return err
		}
		if t.Request.Status != StatusActive {
			return fmt.Errorf("%w: proof can only be rejected on an active trade", ErrInvalidState)
		}
		target = t.Counterpart(actor.UserID)
		switch t.ProofState(target) {
		case ProofNotSubmitted:
			return ErrNotSubmitted
		case ProofApproved:
			if len(t.Ratings) > 0 {
				return fmt.Errorf("%w: approval cannot be revoked after rating started", ErrInvalidState)
			}
		}
		t.ensureMaps()
		now := s.now().UTC()
		t.Proofs[target] = Proof{State: ProofNotSubmitted, UpdatedAt: &now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Event{
		Type:       EventProofRejected,
		RequestID:  requestID,
		ActorID:    actor.UserID,
		Recipients: []string{target},
		Title:      "Your proof was rejected",
		Body:       "Please submit new proof.",
	})
	return t, nil
}
