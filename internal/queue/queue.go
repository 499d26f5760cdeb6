package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"softphone-dialer/internal/calls"
)

var (
	ErrNotFound      = errors.New("queue: record not found")
	ErrInvalidRecord = errors.New("queue: record id required")
)

// Remover is the part of the call directory the queue needs to drop records remotely.
type Remover interface {
	RemoveFromQueue(ctx context.Context, id string) error
}

// Queue is an ordered, id-keyed snapshot of call records.
//
// A Queue is not safe for concurrent use; it is owned by the dialing
// controller which serialises access to it.
type Queue struct {
	order   []string
	records map[string]calls.Record
	filter  string

	remover Remover
	log     *slog.Logger
}

func New(remover Remover, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		records: make(map[string]calls.Record),
		remover: remover,
		log:     log,
	}
}

// Refresh replaces the queue contents with snapshot.
//
// A record that is in_call locally keeps that state when it is still present
// in the snapshot. When force is set, done records are dropped locally and
// their removal is requested from the directory; removal failures are joined
// and returned after the local rebuild has been applied in full.
func (q *Queue) Refresh(ctx context.Context, snapshot []calls.Record, force bool) error {
	order := make([]string, 0, len(snapshot))
	records := make(map[string]calls.Record, len(snapshot))
	var finished []string

	for _, r := range snapshot {
		if r.ID == "" {
			continue
		}
		if _, dup := records[r.ID]; dup {
			continue
		}
		if prev, ok := q.records[r.ID]; ok && prev.State == calls.StateInCall {
			r.State = calls.StateInCall
		}
		if !r.State.Valid() {
			r.State = calls.StatePending
		}
		if r.State == calls.StateDone && r.Duration == "" && r.DurationSeconds > 0 {
			r.Duration = calls.FormatDuration(r.DurationSeconds)
		}
		if force && r.State == calls.StateDone {
			finished = append(finished, r.ID)
			continue
		}
		order = append(order, r.ID)
		records[r.ID] = r
	}

	q.order = order
	q.records = records
	q.log.Debug("queue refreshed", "records", len(order), "force", force, "dropped", len(finished))

	if len(finished) == 0 || q.remover == nil {
		return nil
	}
	var errs []error
	for _, id := range finished {
		if err := q.remover.RemoveFromQueue(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Add inserts r, or replaces the record with the same id in place.
func (q *Queue) Add(r calls.Record) error {
	if r.ID == "" {
		return ErrInvalidRecord
	}
	if !r.State.Valid() {
		r.State = calls.StatePending
	}
	if _, ok := q.records[r.ID]; !ok {
		q.order = append(q.order, r.ID)
	}
	q.records[r.ID] = r
	return nil
}

// Remove drops the record locally, then asks the directory to forget it.
// A directory failure is returned but the local removal stands.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if _, ok := q.records[id]; !ok {
		return ErrNotFound
	}
	delete(q.records, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	if q.remover == nil {
		return nil
	}
	if err := q.remover.RemoveFromQueue(ctx, id); err != nil {
		q.log.Warn("directory removal failed", "id", id, "err", err)
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

func (q *Queue) Get(id string) (calls.Record, bool) {
	r, ok := q.records[id]
	return r, ok
}

func (q *Queue) SetState(id string, s calls.State) error {
	r, ok := q.records[id]
	if !ok {
		return ErrNotFound
	}
	r.State = s
	q.records[id] = r
	return nil
}

// Complete marks the record done and stores its measured duration.
func (q *Queue) Complete(id string, seconds float64) error {
	r, ok := q.records[id]
	if !ok {
		return ErrNotFound
	}
	r.State = calls.StateDone
	r.DurationSeconds = seconds
	r.Duration = calls.FormatDuration(seconds)
	q.records[id] = r
	return nil
}

func (q *Queue) SetFilter(text string) { q.filter = text }

func (q *Queue) Filter() string { return q.filter }

// Visible returns the records matching the current filter, in queue order.
func (q *Queue) Visible() []calls.Record {
	out := make([]calls.Record, 0, len(q.order))
	for _, id := range q.order {
		r := q.records[id]
		if r.Matches(q.filter) {
			out = append(out, r)
		}
	}
	return out
}

// Records returns every record in queue order, ignoring the filter.
func (q *Queue) Records() []calls.Record {
	out := make([]calls.Record, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.records[id])
	}
	return out
}

// NextPending returns the first record that is not done.
func (q *Queue) NextPending() (calls.Record, bool) {
	for _, id := range q.order {
		if r := q.records[id]; r.State != calls.StateDone {
			return r, true
		}
	}
	return calls.Record{}, false
}

// AllPendingIDs lists, in order, the ids of records that are not done.
func (q *Queue) AllPendingIDs() []string {
	out := make([]string, 0, len(q.order))
	for _, id := range q.order {
		if q.records[id].State != calls.StateDone {
			out = append(out, id)
		}
	}
	return out
}

// InCall returns the record currently marked in_call, if any.
func (q *Queue) InCall() (calls.Record, bool) {
	for _, id := range q.order {
		if r := q.records[id]; r.State == calls.StateInCall {
			return r, true
		}
	}
	return calls.Record{}, false
}

// PinInCall makes id the only in_call record. Other in_call records go back
// to pending; an empty id clears them all. Done records are left alone.
func (q *Queue) PinInCall(id string) {
	for _, rid := range q.order {
		r := q.records[rid]
		switch {
		case rid == id && r.State == calls.StatePending:
			r.State = calls.StateInCall
		case rid != id && r.State == calls.StateInCall:
			r.State = calls.StatePending
		default:
			continue
		}
		q.records[rid] = r
	}
}

func (q *Queue) Len() int { return len(q.order) }
