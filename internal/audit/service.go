package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records agent activity. Callers should treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.AgentID == "" || !e.Type.Valid() {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCall records an event about one call task.
func (s *Service) LogCall(ctx context.Context, agentID string, typ EventType, callID, number, message string) error {
	return s.Append(ctx, Event{
		AgentID: agentID,
		Type:    typ,
		CallID:  callID,
		Number:  number,
		Message: message,
	})
}

// LogAgent records an event that is not bound to a call task.
func (s *Service) LogAgent(ctx context.Context, agentID string, typ EventType, message, metadata string) error {
	return s.Append(ctx, Event{
		AgentID:  agentID,
		Type:     typ,
		Message:  message,
		Metadata: metadata,
	})
}
