package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRepo is an in-memory append-only repository used in demo mode and tests.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ListEvents returns agentID's events with from <= created_at < to, oldest first.
func (r *MemoryRepo) ListEvents(ctx context.Context, agentID string, from, to time.Time) ([]Event, error) {
	if agentID == "" {
		return nil, errors.New("agent_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.AgentID != agentID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
