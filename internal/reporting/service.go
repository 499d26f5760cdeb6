package reporting

import (
	"context"
	"errors"
	"time"

	"softphone-dialer/internal/audit"
	"softphone-dialer/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository reads the immutable audit trail.
//
// IMPORTANT:
// - Methods must filter by agent.
// - Range is half-open: From inclusive, To exclusive.
type Repository interface {
	ListEvents(ctx context.Context, agentID string, from, to time.Time) ([]audit.Event, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Activity(ctx context.Context, req ActivityRequest) (ActivitySummary, error) {
	if req.AgentID == "" {
		return ActivitySummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ActivitySummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ActivitySummary{}, errors.New("reporting: repository not configured")
	}

	events, err := s.repo.ListEvents(ctx, req.AgentID, req.Range.From, req.Range.To)
	if err != nil {
		return ActivitySummary{}, err
	}

	out := ActivitySummary{AgentID: req.AgentID, Range: req.Range}
	for _, e := range events {
		switch e.Type {
		case audit.EventTypeCallPlaced:
			out.CallsPlaced++
		case audit.EventTypeCallRejected:
			out.CallsRejected++
		case audit.EventTypeCallEnded:
			out.CallsEnded++
			// call_ended carries the formatted talk time.
			if secs, err := calls.ParseDuration(e.Message); err == nil {
				out.TotalTalkSeconds += secs
			}
		case audit.EventTypeInboundCall:
			out.InboundCalls++
		case audit.EventTypeQueueRemoved:
			out.Removed++
		case audit.EventTypeAutoDialStarted:
			out.AutoDialRuns++
		case audit.EventTypeLineError:
			out.LineErrors++
		case audit.EventTypeAutoDialStopped:
		}
	}
	if out.CallsEnded > 0 {
		out.AverageTalkSeconds = out.TotalTalkSeconds / out.CallsEnded
	}
	if out.CallsPlaced > 0 {
		out.AnswerRate = float64(out.CallsEnded) / float64(out.CallsPlaced)
	}
	out.TotalTalk = calls.FormatDuration(float64(out.TotalTalkSeconds))
	return out, nil
}
