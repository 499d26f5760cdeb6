package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"softphone-dialer/internal/calls"
)

var (
	ErrNotFound        = errors.New("directory: call not found")
	ErrInvalidArgument = errors.New("directory: invalid argument")
)

// Service is the remote store of call tasks the dialer works from.
//
// Implementations are scoped to one agent at construction time.
type Service interface {
	FetchQueue(ctx context.Context) ([]calls.Record, error)
	RemoveFromQueue(ctx context.Context, id string) error

	MarkCallInitiated(ctx context.Context, id string) error
	MarkCallRejected(ctx context.Context, id string) error
	// MarkCallEnded closes the call and returns its measured duration in seconds.
	MarkCallEnded(ctx context.Context, id string) (float64, error)

	CreateAdHocCall(ctx context.Context, req AdHocRequest) (calls.Record, error)
	ScheduleAnother(ctx context.Context, id string) (calls.Record, error)
	LogOutcome(ctx context.Context, o Outcome) error
}

// AdHocRequest asks for a new call task either for a raw number or for a
// business record. Exactly one of Number or Ref must be set.
type AdHocRequest struct {
	Number string     `json:"number,omitempty"`
	Ref    *calls.Ref `json:"ref,omitempty"`
}

func (r AdHocRequest) Validate() error {
	hasNumber := strings.TrimSpace(r.Number) != ""
	hasRef := r.Ref != nil
	if hasNumber == hasRef {
		return ErrInvalidArgument
	}
	if hasRef && !r.Ref.Valid() {
		return ErrInvalidArgument
	}
	return nil
}

// Outcome is the packaged result of a completed call, as handed to the
// outcome form and persisted afterwards.
type Outcome struct {
	CallID          string    `json:"call_id"`
	AgentID         string    `json:"agent_id"`
	Name            string    `json:"name"`
	PartnerName     string    `json:"partner_name"`
	Number          string    `json:"number"`
	Duration        string    `json:"duration"`
	DurationSeconds float64   `json:"duration_seconds"`
	AutoDial        bool      `json:"auto_dial"`
	Note            string    `json:"note,omitempty"`
	LoggedAt        time.Time `json:"logged_at"`
}

func (o Outcome) Validate() error {
	if o.CallID == "" || o.DurationSeconds < 0 {
		return ErrInvalidArgument
	}
	return nil
}

func adHocName(req AdHocRequest) string {
	return "Call to " + strings.TrimSpace(req.Number)
}
