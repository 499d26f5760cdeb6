package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"softphone-dialer/internal/audit"
)

func seed(t *testing.T, repo *audit.MemoryRepo, events ...audit.Event) {
	t.Helper()
	for _, e := range events {
		if err := repo.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestActivity_AggregatesOneAgent(t *testing.T) {
	repo := audit.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, repo,
		audit.Event{AgentID: "a1", Type: audit.EventTypeAutoDialStarted, CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallPlaced, CallID: "c1", CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallEnded, CallID: "c1", Message: "02:05", CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallPlaced, CallID: "c2", CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallRejected, CallID: "c2", CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallPlaced, CallID: "c3", CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallEnded, CallID: "c3", Message: "00:55", CreatedAt: now},
		audit.Event{AgentID: "a2", Type: audit.EventTypeCallPlaced, CallID: "x", CreatedAt: now},
		audit.Event{AgentID: "a1", Type: audit.EventTypeCallPlaced, CallID: "old", CreatedAt: now.Add(-48 * time.Hour)},
	)

	out, err := NewService(repo).Activity(context.Background(), ActivityRequest{
		AgentID: "a1",
		Range:   TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if out.CallsPlaced != 3 || out.CallsEnded != 2 || out.CallsRejected != 1 || out.AutoDialRuns != 1 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if out.TotalTalkSeconds != 180 || out.AverageTalkSeconds != 90 || out.TotalTalk != "03:00" {
		t.Fatalf("unexpected talk time %+v", out)
	}
	if out.AnswerRate < 0.66 || out.AnswerRate > 0.67 {
		t.Fatalf("unexpected answer rate %v", out.AnswerRate)
	}
}

func TestActivity_RejectsBadRequests(t *testing.T) {
	svc := NewService(audit.NewMemoryRepo())
	now := time.Now()
	bad := []ActivityRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{AgentID: "a1"},
		{AgentID: "a1", Range: TimeRange{From: now, To: now}},
	}
	for _, req := range bad {
		if _, err := svc.Activity(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}
