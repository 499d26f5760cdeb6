package audit

import "time"

// Event is an immutable, append-only record of what an agent's dialer did.
//
// Invariants:
// - Events are never updated or deleted.
// - agent_id is required.
// - callers treat audit as best-effort and never block dialing on it.
type Event struct {
	ID      string    `json:"id" db:"id"`
	AgentID string    `json:"agent_id" db:"agent_id"`
	Type    EventType `json:"type" db:"type"`

	// CallID and Number identify the call task, when the event concerns one.
	CallID string `json:"call_id,omitempty" db:"call_id"`
	Number string `json:"number,omitempty" db:"number"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallPlaced      EventType = "call_placed"
	EventTypeCallRejected    EventType = "call_rejected"
	EventTypeCallEnded       EventType = "call_ended"
	EventTypeInboundCall     EventType = "inbound_call"
	EventTypeQueueRemoved    EventType = "queue_removed"
	EventTypeAutoDialStarted EventType = "auto_dial_started"
	EventTypeAutoDialStopped EventType = "auto_dial_stopped"
	EventTypeLineError       EventType = "line_error"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeCallPlaced, EventTypeCallRejected, EventTypeCallEnded, EventTypeInboundCall,
		EventTypeQueueRemoved, EventTypeAutoDialStarted, EventTypeAutoDialStopped, EventTypeLineError:
		return true
	default:
		return false
	}
}
