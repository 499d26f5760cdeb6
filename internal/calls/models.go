package calls

import (
	"strings"
	"time"
)

// Record is one unit of dialing work as fetched from the call directory.
//
// Invariant: at most one Record in a queue is StateInCall, and it is the
// target of the active session.
type Record struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	PartnerID    string `json:"partner_id,omitempty" db:"partner_id"`
	PartnerName  string `json:"partner_name,omitempty" db:"partner_name"`
	PartnerEmail string `json:"partner_email,omitempty" db:"partner_email"`

	// Phone is optional; a record without a number stays in the queue but cannot be dialed.
	Phone string `json:"phone,omitempty" db:"phone"`

	OpportunityID   string `json:"opportunity_id,omitempty" db:"opportunity_id"`
	OpportunityName string `json:"opportunity_name,omitempty" db:"opportunity_name"`

	Description string `json:"description,omitempty" db:"description"`
	Priority    int    `json:"priority" db:"priority"`

	State State `json:"state" db:"state"`

	// Duration is the formatted MM:SS value, set only once the call completed.
	Duration        string  `json:"duration,omitempty" db:"-"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type State string

const (
	StatePending State = "pending"
	StateInCall  State = "in_call"
	StateDone    State = "done"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateInCall, StateDone:
		return true
	default:
		return false
	}
}

const unknownPartner = "Unknown"

func (r Record) HasNumber() bool { return strings.TrimSpace(r.Phone) != "" }

// DisplayName is the counterpart label shown to the agent.
func (r Record) DisplayName() string {
	if strings.TrimSpace(r.PartnerName) == "" {
		return unknownPartner
	}
	return r.PartnerName
}

// Matches reports whether filter is a case-insensitive substring of the
// partner name or the task name. An empty filter matches everything.
func (r Record) Matches(filter string) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	if f == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.DisplayName()), f) ||
		strings.Contains(strings.ToLower(r.Name), f)
}

// Ref points at a business record an ad-hoc call can be created for.
type Ref struct {
	Model string `json:"model"`
	ID    string `json:"id"`
}

const (
	RefModelPartner     = "partner"
	RefModelOpportunity = "opportunity"
)

func (r Ref) Valid() bool {
	if r.ID == "" {
		return false
	}
	return r.Model == RefModelPartner || r.Model == RefModelOpportunity
}
