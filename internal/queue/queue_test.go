package queue

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"softphone-dialer/internal/calls"
)

type stubRemover struct {
	removed []string
	fail    map[string]error
}

func (s *stubRemover) RemoveFromQueue(ctx context.Context, id string) error {
	if err := s.fail[id]; err != nil {
		return err
	}
	s.removed = append(s.removed, id)
	return nil
}

func ids(rs []calls.Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestRefresh_DeduplicatesAndKeepsOrder(t *testing.T) {
	q := New(nil, nil)
	err := q.Refresh(context.Background(), []calls.Record{
		{ID: "3", Name: "c"},
		{ID: "1", Name: "a"},
		{ID: "3", Name: "dup"},
		{ID: "", Name: "no id"},
	}, false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := ids(q.Visible()); !reflect.DeepEqual(got, []string{"3", "1"}) {
		t.Fatalf("unexpected order %v", got)
	}
	r, _ := q.Get("3")
	if r.Name != "c" || r.State != calls.StatePending {
		t.Fatalf("expected first occurrence with pending state, got %+v", r)
	}
}

func TestRefresh_IsIdempotent(t *testing.T) {
	q := New(nil, nil)
	snap := []calls.Record{{ID: "1", State: calls.StatePending}, {ID: "2", State: calls.StateDone, DurationSeconds: 61}}
	_ = q.Refresh(context.Background(), snap, false)
	first := q.Visible()
	_ = q.Refresh(context.Background(), snap, false)
	if !reflect.DeepEqual(first, q.Visible()) {
		t.Fatalf("visible set changed on re-apply")
	}
	r, _ := q.Get("2")
	if r.Duration != "01:01" {
		t.Fatalf("expected formatted duration for done record, got %q", r.Duration)
	}
}

func TestRefresh_PreservesInCallRecord(t *testing.T) {
	q := New(nil, nil)
	_ = q.Refresh(context.Background(), []calls.Record{{ID: "1"}, {ID: "2"}}, false)
	if err := q.SetState("1", calls.StateInCall); err != nil {
		t.Fatalf("set state: %v", err)
	}

	_ = q.Refresh(context.Background(), []calls.Record{{ID: "1", State: calls.StatePending}, {ID: "2"}}, true)
	r, ok := q.Get("1")
	if !ok || r.State != calls.StateInCall {
		t.Fatalf("in_call record lost on refresh: %+v", r)
	}

	_ = q.Refresh(context.Background(), []calls.Record{{ID: "2"}}, false)
	if _, ok := q.InCall(); ok {
		t.Fatalf("absent in_call record should be evicted")
	}
}

func TestRefresh_SilentKeepsDone(t *testing.T) {
	rm := &stubRemover{}
	q := New(rm, nil)
	_ = q.Refresh(context.Background(), []calls.Record{{ID: "1", State: calls.StateDone}, {ID: "2"}}, false)
	if q.Len() != 2 {
		t.Fatalf("expected done record kept, len=%d", q.Len())
	}
	if len(rm.removed) != 0 {
		t.Fatalf("silent refresh must not remove remotely")
	}
	if got := q.AllPendingIDs(); !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("unexpected pending ids %v", got)
	}
}

func TestRefresh_ForceDropsDoneAndReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	rm := &stubRemover{fail: map[string]error{"3": boom}}
	q := New(rm, nil)

	err := q.Refresh(context.Background(), []calls.Record{
		{ID: "1", State: calls.StateDone},
		{ID: "2"},
		{ID: "3", State: calls.StateDone},
	}, true)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined removal error, got %v", err)
	}
	if got := ids(q.Visible()); !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("expected only pending record, got %v", got)
	}
	if !reflect.DeepEqual(rm.removed, []string{"1"}) {
		t.Fatalf("unexpected removals %v", rm.removed)
	}
}

func TestAdd_UpsertKeepsPosition(t *testing.T) {
	q := New(nil, nil)
	_ = q.Add(calls.Record{ID: "1", Name: "a"})
	_ = q.Add(calls.Record{ID: "2", Name: "b"})
	_ = q.Add(calls.Record{ID: "1", Name: "a2"})

	if got := ids(q.Visible()); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if r, _ := q.Get("1"); r.Name != "a2" {
		t.Fatalf("expected replacement, got %q", r.Name)
	}
	if err := q.Add(calls.Record{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestRemove_KeepsLocalRemovalOnDirectoryFailure(t *testing.T) {
	boom := errors.New("offline")
	rm := &stubRemover{fail: map[string]error{"1": boom}}
	q := New(rm, nil)
	_ = q.Add(calls.Record{ID: "1"})
	_ = q.Add(calls.Record{ID: "2"})

	if err := q.Remove(context.Background(), "1"); !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
	if _, ok := q.Get("1"); ok {
		t.Fatalf("local removal must not be rolled back")
	}
	if err := q.Remove(context.Background(), "2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := q.Remove(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestFilter_HidesWithoutRemoving(t *testing.T) {
	q := New(nil, nil)
	_ = q.Add(calls.Record{ID: "1", Name: "Quote", PartnerName: "Deco Addict"})
	_ = q.Add(calls.Record{ID: "2", Name: "Demo", PartnerName: "Gemini Furniture"})

	q.SetFilter("GEMINI")
	if got := ids(q.Visible()); !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("unexpected visible %v", got)
	}
	if q.Len() != 2 {
		t.Fatalf("filter must not remove records")
	}
	if got := ids(q.Records()); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("records must ignore the filter, got %v", got)
	}
	q.SetFilter("")
	if len(q.Visible()) != 2 {
		t.Fatalf("expected all visible")
	}
}

func TestNextPendingAndComplete(t *testing.T) {
	q := New(nil, nil)
	_ = q.Add(calls.Record{ID: "1", State: calls.StateDone})
	_ = q.Add(calls.Record{ID: "2"})

	r, ok := q.NextPending()
	if !ok || r.ID != "2" {
		t.Fatalf("expected 2, got %+v", r)
	}
	if err := q.Complete("2", 125.4); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, ok := q.NextPending(); ok {
		t.Fatalf("expected no pending records")
	}
	r, _ = q.Get("2")
	if r.Duration != "02:05" || r.State != calls.StateDone {
		t.Fatalf("unexpected completed record %+v", r)
	}
}

func TestPinInCall_KeepsSingleInCallRecord(t *testing.T) {
	q := New(nil, nil)
	_ = q.Add(calls.Record{ID: "1", State: calls.StateInCall})
	_ = q.Add(calls.Record{ID: "2"})
	_ = q.Add(calls.Record{ID: "3", State: calls.StateDone})

	q.PinInCall("2")
	r, ok := q.InCall()
	if !ok || r.ID != "2" {
		t.Fatalf("expected 2 in call, got %+v", r)
	}
	if r, _ := q.Get("1"); r.State != calls.StatePending {
		t.Fatalf("expected 1 back to pending, got %s", r.State)
	}

	q.PinInCall("3")
	if r, _ := q.Get("3"); r.State != calls.StateDone {
		t.Fatalf("done record must stay done")
	}
	if _, ok := q.InCall(); ok {
		t.Fatalf("expected no record in call")
	}
}
