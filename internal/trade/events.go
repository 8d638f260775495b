package trade

// EventType names a lifecycle event delivered to participants.
type EventType string

const (
	EventInterestNew      EventType = "interest:new"
	EventInterestAccepted EventType = "interest:accepted"
	EventInterestDeclined EventType = "interest:declined"
	EventRequestCancelled EventType = "request:cancelled"
	EventDetailsReady     EventType = "details:ready"
	EventEvaluationDone   EventType = "evaluation:done"
	EventTradeActive      EventType = "trade:active"
	EventDetailsReopened  EventType = "details:reopened"
	EventProofSubmitted   EventType = "proof:submitted"
	EventProofApproved    EventType = "proof:approved"
	EventProofRejected    EventType = "proof:rejected"
	EventReadyToRate      EventType = "rating:ready"
	EventTradeCompleted   EventType = "trade:completed"
)

// Event is one notification-worthy transition.
type Event struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id"`
	ActorID    string    `json:"actor_id"`
	Recipients []string  `json:"recipients"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
}
