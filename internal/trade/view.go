package trade

// ProofControls is what the proof panel shows for one side. It is derived
// from the two side states alone.
type ProofControls struct {
	SubmitLabel string `json:"submit_label"`
	CanSubmit   bool   `json:"can_submit"`
	CanApprove  bool   `json:"can_approve"`
	CanReject   bool   `json:"can_reject"`
	CanRate     bool   `json:"can_rate"`
	Status      string `json:"status"`
}

// ProofActions derives the proof controls from my side and my partner's side.
func ProofActions(my, partner ProofState) ProofControls {
	c := ProofControls{
		CanApprove: partner == ProofSubmitted,
		CanReject:  partner != ProofNotSubmitted,
		CanRate:    my == ProofApproved && partner == ProofApproved,
	}
	switch my {
	case ProofNotSubmitted:
		c.SubmitLabel = "Submit proof"
		c.CanSubmit = true
	case ProofSubmitted:
		c.SubmitLabel = "Resubmit proof"
		c.CanSubmit = true
	case ProofApproved:
		c.SubmitLabel = "Proof approved"
	}

	switch {
	case c.CanRate:
		c.Status = "Both proofs approved. Rate your partner."
	case partner == ProofSubmitted:
		c.Status = "Your partner submitted proof. Review it."
	case my == ProofNotSubmitted:
		c.Status = "Submit proof of your side of the trade."
	case my == ProofSubmitted:
		c.Status = "Waiting for your partner to review your proof."
	default:
		c.Status = "Waiting for your partner's proof."
	}
	return c
}

// Role is the actor's relation to a trade.
type Role string

const (
	RoleOwner     Role = "owner"
	RolePartner   Role = "partner"
	RoleResponder Role = "responder"
	RoleViewer    Role = "viewer"
)

// TradeView is the actor-relative presentation of a trade snapshot.
type TradeView struct {
	Request        Request         `json:"request"`
	Role           Role            `json:"role"`
	Interests      []Interest      `json:"interests,omitempty"`
	Gate           GateStatus      `json:"gate"`
	MyDetails      *Details        `json:"my_details,omitempty"`
	PartnerDetails *Details        `json:"partner_details,omitempty"`
	Assessment     *Assessment     `json:"assessment,omitempty"`
	MyProof        ProofState      `json:"my_proof"`
	PartnerProof   ProofState      `json:"partner_proof"`
	PartnerFiles   []FileRef       `json:"partner_files,omitempty"`
	Proof          *ProofControls  `json:"proof_controls,omitempty"`
	MyRating       *Rating         `json:"my_rating,omitempty"`
	Actions        map[string]bool `json:"actions"`
}

// View derives what actorID may see and do on t.
func (t *Trade) View(actorID string) TradeView {
	v := TradeView{
		Request: t.Request,
		Role:    t.roleOf(actorID),
		Gate:    t.Gate(),
		Actions: make(map[string]bool),
	}
	st := t.Request.Status

	switch v.Role {
	case RoleOwner:
		v.Interests = append([]Interest(nil), t.Interests...)
		v.Actions["cancel"] = st == StatusPosted || st == StatusAccepted
		v.Actions["delete"] = st == StatusPosted
		v.Actions["accept"] = st == StatusPosted && hasPending(t)
	case RoleResponder, RoleViewer:
		for _, in := range t.Interests {
			if in.ResponderID == actorID {
				v.Interests = append(v.Interests, in)
			}
		}
		v.Actions["express_interest"] = st == StatusPosted && !holdsInterest(t, actorID)
		return v
	}
	if t.Request.PartnerID == "" {
		return v
	}

	partner := t.Counterpart(actorID)
	if d, ok := t.Details[actorID]; ok && d.Submitted {
		mine := d.Details
		v.MyDetails = &mine
	}
	if d, ok := t.Details[partner]; ok && d.Submitted {
		theirs := d.Details
		v.PartnerDetails = &theirs
	}
	if t.Assessment != nil {
		a := *t.Assessment
		v.Assessment = &a
	}
	v.MyProof = t.ProofState(actorID)
	v.PartnerProof = t.ProofState(partner)
	v.PartnerFiles = append([]FileRef(nil), t.Proofs[partner].Files...)
	if r, ok := t.Ratings[actorID]; ok {
		v.MyRating = &r
	}

	submitted := v.MyDetails != nil
	v.Actions["submit_details"] = !submitted && (st == StatusAccepted || st == StatusFinalizing)
	v.Actions["evaluate"] = st == StatusFinalizing && v.Gate.Ready
	v.Actions["confirm"] = st == StatusFinalizing && t.Assessment != nil
	v.Actions["reject_evaluation"] = st == StatusFinalizing

	if st == StatusActive {
		pc := ProofActions(v.MyProof, v.PartnerProof)
		if v.PartnerProof == ProofApproved && len(t.Ratings) > 0 {
			pc.CanReject = false
		}
		if v.MyRating != nil {
			pc.CanRate = false
		}
		v.Proof = &pc
		v.Actions["submit_proof"] = pc.CanSubmit
		v.Actions["approve_proof"] = pc.CanApprove
		v.Actions["reject_proof"] = pc.CanReject
		v.Actions["rate"] = pc.CanRate
	}
	return v
}

func (t *Trade) roleOf(userID string) Role {
	switch {
	case userID == t.Request.OwnerID:
		return RoleOwner
	case userID != "" && userID == t.Request.PartnerID:
		return RolePartner
	case holdsInterest(t, userID):
		return RoleResponder
	}
	return RoleViewer
}

func hasPending(t *Trade) bool {
	for _, in := range t.Interests {
		if in.Status == InterestPending {
			return true
		}
	}
	return false
}

// holdsInterest reports a non-declined interest from userID.
func holdsInterest(t *Trade, userID string) bool {
	for _, in := range t.Interests {
		if in.ResponderID == userID && in.Status != InterestDeclined {
			return true
		}
	}
	return false
}
