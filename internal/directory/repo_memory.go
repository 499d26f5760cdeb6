package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"softphone-dialer/internal/calls"

	"github.com/google/uuid"
)

// Contact is a business record an ad-hoc call can be placed for.
type Contact struct {
	Ref          calls.Ref
	Name         string
	PartnerID    string
	PartnerName  string
	PartnerEmail string
	Phone        string
}

// MemoryRepo is an in-memory directory used in demo mode and tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	clock    func() time.Time
	order    []string
	records  map[string]calls.Record
	queued   map[string]bool
	started  map[string]time.Time
	contacts map[calls.Ref]Contact
	outcomes []Outcome
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		clock:    time.Now,
		records:  make(map[string]calls.Record),
		queued:   make(map[string]bool),
		started:  make(map[string]time.Time),
		contacts: make(map[calls.Ref]Contact),
	}
}

// WithClock replaces the time source; durations are measured with it.
func (r *MemoryRepo) WithClock(clock func() time.Time) *MemoryRepo {
	r.clock = clock
	return r
}

// Seed queues records as given. Records without an id get one.
func (r *MemoryRepo) Seed(records ...calls.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.insert(rec)
	}
}

func (r *MemoryRepo) AddContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.Ref] = c
}

func (r *MemoryRepo) insert(rec calls.Record) calls.Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if !rec.State.Valid() {
		rec.State = calls.StatePending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock().UTC()
	}
	if _, ok := r.records[rec.ID]; !ok {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = rec
	r.queued[rec.ID] = true
	return rec
}

func (r *MemoryRepo) FetchQueue(ctx context.Context) ([]calls.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Record, 0, len(r.order))
	for _, id := range r.order {
		if r.queued[id] {
			out = append(out, r.records[id])
		}
	}
	return out, nil
}

func (r *MemoryRepo) RemoveFromQueue(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	r.queued[id] = false
	return nil
}

func (r *MemoryRepo) MarkCallInitiated(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.State = calls.StateInCall
	r.records[id] = rec
	r.started[id] = r.clock()
	return nil
}

func (r *MemoryRepo) MarkCallRejected(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.State = calls.StatePending
	r.records[id] = rec
	delete(r.started, id)
	return nil
}

func (r *MemoryRepo) MarkCallEnded(ctx context.Context, id string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return 0, ErrNotFound
	}
	var secs float64
	if at, ok := r.started[id]; ok {
		secs = r.clock().Sub(at).Seconds()
		delete(r.started, id)
	}
	rec.State = calls.StateDone
	rec.DurationSeconds = secs
	rec.Duration = calls.FormatDuration(secs)
	r.records[id] = rec
	return secs, nil
}

func (r *MemoryRepo) CreateAdHocCall(ctx context.Context, req AdHocRequest) (calls.Record, error) {
	if err := req.Validate(); err != nil {
		return calls.Record{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := calls.Record{Name: adHocName(req), Phone: strings.TrimSpace(req.Number)}
	if req.Ref != nil {
		c, ok := r.contacts[*req.Ref]
		if !ok {
			return calls.Record{}, ErrNotFound
		}
		rec = recordForContact(c)
	}
	return r.insert(rec), nil
}

func (r *MemoryRepo) ScheduleAnother(ctx context.Context, id string) (calls.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.records[id]
	if !ok {
		return calls.Record{}, ErrNotFound
	}
	next := src
	next.ID = ""
	next.State = calls.StatePending
	next.Duration = ""
	next.DurationSeconds = 0
	next.CreatedAt = time.Time{}
	return r.insert(next), nil
}

func (r *MemoryRepo) LogOutcome(ctx context.Context, o Outcome) error {
	if err := o.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.LoggedAt.IsZero() {
		o.LoggedAt = r.clock().UTC()
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *MemoryRepo) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Record returns the stored record regardless of its queue membership.
func (r *MemoryRepo) Record(id string) (calls.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

func recordForContact(c Contact) calls.Record {
	rec := calls.Record{
		Name:         "Call " + c.Name,
		PartnerID:    c.PartnerID,
		PartnerName:  c.PartnerName,
		PartnerEmail: c.PartnerEmail,
		Phone:        c.Phone,
	}
	if c.Ref.Model == calls.RefModelOpportunity {
		rec.OpportunityID = c.Ref.ID
		rec.OpportunityName = c.Name
	}
	if c.Ref.Model == calls.RefModelPartner && rec.PartnerID == "" {
		rec.PartnerID = c.Ref.ID
		if rec.PartnerName == "" {
			rec.PartnerName = c.Name
		}
	}
	return rec
}
