package trade

import "time"

// Status is the lifecycle state of a trade request.
type Status string

const (
	StatusPosted     Status = "posted"
	StatusAccepted   Status = "accepted"
	StatusFinalizing Status = "finalizing"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// InterestStatus is the state of one responder's offer.
type InterestStatus string

const (
	InterestPending  InterestStatus = "pending"
	InterestAccepted InterestStatus = "accepted"
	InterestDeclined InterestStatus = "declined"
)

type DeliveryMode string

const (
	DeliveryOnsite DeliveryMode = "onsite"
	DeliveryOnline DeliveryMode = "online"
	DeliveryHybrid DeliveryMode = "hybrid"
)

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillCertified    SkillLevel = "certified"
)

type RequestType string

const (
	RequestService RequestType = "service"
	RequestOutput  RequestType = "output"
	RequestProject RequestType = "project"
)

// ProofState is the canonical per-side proof enum. Display logic is derived
// from the two sides' states and nothing else.
type ProofState string

const (
	ProofNotSubmitted ProofState = "not_submitted"
	ProofSubmitted    ProofState = "submitted"
	ProofApproved     ProofState = "approved"
)

const (
	MaxDescriptionLen = 500
	MaxFeedbackLen    = 1000
)

// Actor is the authenticated caller. Every operation receives it explicitly.
type Actor struct {
	UserID string
}

// Request is the posted need-for-skill listing.
type Request struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	SkillNeeded string     `json:"skill_needed"`
	Description string     `json:"description,omitempty"`
	Deadline    time.Time  `json:"deadline"`
	Status      Status     `json:"status"`
	PartnerID   string     `json:"partner_id,omitempty"`
	InterestID  string     `json:"accepted_interest_id,omitempty"`
	ChannelID   string     `json:"channel_id,omitempty"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Interest is a responder's offer against one request.
type Interest struct {
	ID           string         `json:"id"`
	RequestID    string         `json:"request_id"`
	ResponderID  string         `json:"responder_id"`
	SkillOffered string         `json:"skill_offered"`
	Status       InterestStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FileRef is an opaque handle into the file store.
type FileRef struct {
	Name    string `json:"name" validate:"required"`
	Ref     string `json:"ref" validate:"required"`
	IsImage bool   `json:"is_image"`
}

// Details is what each participant submits before evaluation.
type Details struct {
	DeliveryMode DeliveryMode `json:"delivery_mode" validate:"required,oneof=onsite online hybrid"`
	SkillLevel   SkillLevel   `json:"skill_level" validate:"required,oneof=beginner intermediate advanced certified"`
	RequestType  RequestType  `json:"request_type" validate:"required,oneof=service output project"`
	Description  string       `json:"description" validate:"required,max=500"`
	ContextImage *FileRef     `json:"context_image,omitempty"`
}

// DetailSubmission is one participant's side of the finalization gate.
type DetailSubmission struct {
	Submitted   bool       `json:"submitted"`
	Details     Details    `json:"details"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// Assessment is the normalized result of the scoring collaborator.
type Assessment struct {
	Overall        float64   `json:"overall"`
	TaskComplexity float64   `json:"task_complexity"`
	TimeCommitment float64   `json:"time_commitment"`
	SkillLevel     float64   `json:"skill_level"`
	Feedback       string    `json:"feedback"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// Proof is one participant's side of the proof exchange.
type Proof struct {
	State     ProofState `json:"state"`
	Files     []FileRef  `json:"files,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Rating is the score one participant gives the other.
type Rating struct {
	RaterID     string    `json:"rater_id"`
	RateeID     string    `json:"ratee_id"`
	Score       int       `json:"score"`
	Feedback    string    `json:"feedback"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Trade is the aggregate persisted and mutated as one unit. Per-participant
// maps are keyed by user id and only ever hold the owner and the partner.
type Trade struct {
	Request    Request                     `json:"request"`
	Interests  []Interest                  `json:"interests"`
	Details    map[string]DetailSubmission `json:"details"`
	Assessment *Assessment                 `json:"assessment,omitempty"`
	Proofs     map[string]Proof            `json:"proofs"`
	Ratings    map[string]Rating           `json:"ratings"`
}

// Participants returns the owner and, once accepted, the partner.
func (t *Trade) Participants() []string {
	if t.Request.PartnerID == "" {
		return []string{t.Request.OwnerID}
	}
	return []string{t.Request.OwnerID, t.Request.PartnerID}
}

// IsParticipant reports whether userID is the owner or the accepted partner.
func (t *Trade) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == t.Request.OwnerID || (t.Request.PartnerID != "" && userID == t.Request.PartnerID)
}

// Counterpart returns the other participant, or "" before acceptance.
func (t *Trade) Counterpart(userID string) string {
	switch userID {
	case t.Request.OwnerID:
		return t.Request.PartnerID
	case t.Request.PartnerID:
		return t.Request.OwnerID
	}
	return ""
}

// Interest returns a pointer into Interests, or nil.
func (t *Trade) Interest(id string) *Interest {
	for i := range t.Interests {
		if t.Interests[i].ID == id {
			return &t.Interests[i]
		}
	}
	return nil
}

// ProofState returns the side's state, NOT_SUBMITTED when absent.
func (t *Trade) ProofState(userID string) ProofState {
	if p, ok := t.Proofs[userID]; ok && p.State != "" {
		return p.State
	}
	return ProofNotSubmitted
}

// BothApproved gates rating.
func (t *Trade) BothApproved() bool {
	if t.Request.PartnerID == "" {
		return false
	}
	return t.ProofState(t.Request.OwnerID) == ProofApproved &&
		t.ProofState(t.Request.PartnerID) == ProofApproved
}

// BothRated triggers archival.
func (t *Trade) BothRated() bool {
	if t.Request.PartnerID == "" {
		return false
	}
	_, a := t.Ratings[t.Request.OwnerID]
	_, b := t.Ratings[t.Request.PartnerID]
	return a && b
}

// References reports whether ref is attached to the trade as proof or as a
// details context image.
func (t *Trade) References(ref string) bool {
	if ref == "" {
		return false
	}
	for _, p := range t.Proofs {
		for _, f := range p.Files {
			if f.Ref == ref {
				return true
			}
		}
	}
	for _, d := range t.Details {
		if img := d.Details.ContextImage; img != nil && img.Ref == ref {
			return true
		}
	}
	return false
}

// Clone deep-copies the aggregate.
func (t *Trade) Clone() *Trade {
	c := &Trade{Request: t.Request}
	if t.Request.CompletedAt != nil {
		at := *t.Request.CompletedAt
		c.Request.CompletedAt = &at
	}
	c.Interests = append([]Interest(nil), t.Interests...)
	if t.Details != nil {
		c.Details = make(map[string]DetailSubmission, len(t.Details))
		for k, v := range t.Details {
			if v.Details.ContextImage != nil {
				img := *v.Details.ContextImage
				v.Details.ContextImage = &img
			}
			if v.SubmittedAt != nil {
				at := *v.SubmittedAt
				v.SubmittedAt = &at
			}
			c.Details[k] = v
		}
	}
	if t.Assessment != nil {
		a := *t.Assessment
		c.Assessment = &a
	}
	if t.Proofs != nil {
		c.Proofs = make(map[string]Proof, len(t.Proofs))
		for k, v := range t.Proofs {
			v.Files = append([]FileRef(nil), v.Files...)
			if v.UpdatedAt != nil {
				at := *v.UpdatedAt
				v.UpdatedAt = &at
			}
			c.Proofs[k] = v
		}
	}
	if t.Ratings != nil {
		c.Ratings = make(map[string]Rating, len(t.Ratings))
		for k, v := range t.Ratings {
			c.Ratings[k] = v
		}
	}
	return c
}

func (t *Trade) ensureMaps() {
	if t.Details == nil {
		t.Details = make(map[string]DetailSubmission)
	}
	if t.Proofs == nil {
		t.Proofs = make(map[string]Proof)
	}
	if t.Ratings == nil {
		t.Ratings = make(map[string]Rating)
	}
}
