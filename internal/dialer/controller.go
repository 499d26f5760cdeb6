package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"softphone-dialer/internal/audit"
	"softphone-dialer/internal/autodial"
	"softphone-dialer/internal/calls"
	"softphone-dialer/internal/directory"
	"softphone-dialer/internal/queue"
	"softphone-dialer/internal/session"
)

type Config struct {
	AgentID string

	// ExternalPhone is the transfer destination used when none is given.
	ExternalPhone  string
	// AlwaysTransfer hands every answered outbound call to ExternalPhone.
	AlwaysTransfer bool

	// AutoDialPause delays each auto-dial advance. Zero dials the next
	// record as soon as the session is idle again.
	AutoDialPause time.Duration
}

// Auditor records agent activity. Failures are logged and otherwise ignored.
type Auditor interface {
	LogCall(ctx context.Context, agentID string, typ audit.EventType, callID, number, message string) error
	LogAgent(ctx context.Context, agentID string, typ audit.EventType, message, metadata string) error
}

// Snapshot is the full presentation state of the dialer.
type Snapshot struct {
	Session  session.Info `json:"session"`
	Queue    QueueView    `json:"queue"`
	Selected string       `json:"selected,omitempty"`
	AutoDial AutoDialView `json:"auto_dial"`

	// Outcome is the oldest completed call still waiting to be logged.
	Outcome         *directory.Outcome `json:"pending_outcome,omitempty"`
	PendingOutcomes int                `json:"pending_outcomes"`
}

// Controller owns the queue, the call session and the auto-dialer of one agent.
//
// Every command and every signaling event runs to completion under mu, so the
// owned components never see concurrent access. Collaborator calls issued by
// a command are made while holding mu; only the ad-hoc gate is awaited
// without it.
type Controller struct {
	cfg Config
	dir directory.Service
	pub Publisher
	log *slog.Logger

	lease Lease
	audit Auditor

	mu      sync.Mutex
	queue   *queue.Queue
	session *session.Session
	auto    *autodial.Dialer

	runCtx   context.Context
	selected string
	// inCall is the record marked in_call, if any.
	inCall   string
	autoCall bool
	leased   bool
	// pending holds completed calls not yet logged, oldest first.
	pending  []directory.Outcome
	gates    []chan struct{}
	advance  *time.Timer
}

func New(cfg Config, dir directory.Service, sig session.Signaler, pub Publisher, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = discard{}
	}
	log = log.With("component", "dialer", "agent_id", cfg.AgentID)
	return &Controller{
		cfg:     cfg,
		dir:     dir,
		pub:     pub,
		log:     log,
		queue:   queue.New(dir, log),
		session: session.New(sig, log),
		auto:    autodial.New(),
		runCtx:  context.Background(),
	}
}

// WithLease makes every call, outbound or inbound, hold l for its duration.
func (c *Controller) WithLease(l Lease) *Controller {
	c.lease = l
	return c
}

func (c *Controller) WithAudit(a Auditor) *Controller {
	c.audit = a
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Session:  c.session.Info(),
		Queue:    c.queueView(),
		Selected: c.selected,
		AutoDial: c.autoDialView(),
	}
	if len(c.pending) > 0 {
		o := c.pending[0]
		s.Outcome = &o
		s.PendingOutcomes = len(c.pending)
	}
	return s
}

// SelectCall focuses id. Selecting the focused record again clears the focus.
func (c *Controller) SelectCall(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectionPinned() {
		return ErrSelectionBusy
	}
	if _, ok := c.queue.Get(id); !ok {
		return ErrNotFound
	}
	if c.selected == id {
		c.setSelection("")
		return nil
	}
	c.setSelection(id)
	return nil
}

// DeselectCall clears the focus. It never touches a call in progress.
func (c *Controller) DeselectCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectionPinned() {
		return ErrSelectionBusy
	}
	if c.selected != "" {
		c.setSelection("")
	}
	return nil
}

// selectionPinned reports whether auto-dial currently owns the selection.
func (c *Controller) selectionPinned() bool {
	return c.auto.Active() && !c.session.Idle()
}

func (c *Controller) PlaceCall(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.place(ctx, id, false)
}

func (c *Controller) place(ctx context.Context, id string, auto bool) error {
	rec, ok := c.queue.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !rec.HasNumber() {
		c.notice("Missing number", fmt.Sprintf("%s has no phone number.", rec.DisplayName()))
		return ErrMissingNumber
	}
	switch c.session.State() {
	case session.Idle:
	case session.ErrorTemporary, session.ErrorFatal:
		return ErrBlocked
	default:
		c.log.Debug("place call ignored, session active", "id", id)
		return ErrSessionActive
	}

	if err := c.acquireLease(ctx); err != nil {
		return err
	}

	if c.selected != id {
		c.setSelection(id)
	}
	if _, err := c.session.Start(ctx, rec.ID, rec.Phone); err != nil {
		c.releaseLease(ctx)
		c.log.Warn("place call failed", "id", id, "err", err)
		c.notice("Call failed", err.Error())
		return sessionErr(err)
	}
	c.autoCall = auto
	c.publishSession()
	c.auditCall(ctx, audit.EventTypeCallPlaced, rec.ID, rec.Phone, "")
	return nil
}

func (c *Controller) HangUp(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State() == session.Idle {
		return ErrNoSession
	}
	return sessionErr(c.session.Hangup(ctx))
}

// Transfer hands the connected call to number, or to the configured
// external phone when number is empty.
func (c *Controller) Transfer(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		number = c.cfg.ExternalPhone
	}
	if number == "" {
		return ErrMissingNumber
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State() == session.Idle {
		return ErrNoSession
	}
	return sessionErr(c.session.Transfer(ctx, number))
}

func (c *Controller) SendDigit(ctx context.Context, digits string) error {
	if strings.TrimSpace(digits) == "" {
		return ErrInvalidInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State() == session.Idle {
		return ErrNoSession
	}
	return sessionErr(c.session.SendDigits(ctx, digits))
}

// StartAutoDial dials every record that is not done, in queue order.
func (c *Controller) StartAutoDial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auto.Active() {
		return nil
	}
	ids := c.queue.AllPendingIDs()
	if t := c.session.Target(); t != "" {
		ids = without(ids, t)
	}
	if !c.auto.Start(ids) {
		c.notice("Auto-dial", "Nothing to dial.")
		return ErrNothingToDial
	}
	c.log.Info("auto-dial started", "records", len(ids))
	c.publishAutoDial()
	c.auditAgent(ctx, audit.EventTypeAutoDialStarted, "", strconv.Itoa(len(ids)))
	if c.session.Idle() {
		c.dialNext(ctx)
	}
	return nil
}

// StopAutoDial suppresses further advances. A call in progress keeps running.
func (c *Controller) StopAutoDial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.auto.Active() {
		return nil
	}
	c.stopAutoDial(ctx, "stopped by agent")
	return nil
}

// Resolve acknowledges a blocking line error.
func (c *Controller) Resolve(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.session.Resolve(); err != nil {
		return ErrNotBlocked
	}
	c.publishSession()
	if c.lineFree() {
		c.releaseLease(ctx)
	}
	c.advanceAutoDial(ctx)
	return nil
}

func (c *Controller) RefreshQueue(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx, force)
}

func (c *Controller) refresh(ctx context.Context, force bool) error {
	snap, err := c.dir.FetchQueue(ctx)
	if err != nil {
		c.log.Warn("fetch queue failed", "err", err)
		c.notice("Queue refresh failed", err.Error())
		return fmt.Errorf("%w: fetch queue: %w", ErrDirectory, err)
	}
	rerr := c.queue.Refresh(ctx, snap, force)
	c.queue.PinInCall(c.inCall)
	if c.selected != "" {
		if _, ok := c.queue.Get(c.selected); !ok {
			c.setSelection("")
		}
	}
	c.publishQueue()
	c.openGates()

	if rerr != nil {
		c.log.Warn("queue cleanup failed", "err", rerr)
		c.notice("Queue cleanup failed", rerr.Error())
		return fmt.Errorf("%w: %w", ErrDirectory, rerr)
	}
	return nil
}

// ScheduleCall asks the directory for a follow-up call of id and reloads the queue.
func (c *Controller) ScheduleCall(ctx context.Context, id string) (calls.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queue.Get(id); !ok {
		return calls.Record{}, ErrNotFound
	}
	rec, err := c.dir.ScheduleAnother(ctx, id)
	if err != nil {
		c.notice("Schedule failed", err.Error())
		return calls.Record{}, fmt.Errorf("%w: schedule: %w", ErrDirectory, err)
	}
	if err := c.refresh(ctx, false); err != nil {
		return rec, err
	}
	return rec, nil
}

// RemoveCall drops id from the queue. The local removal stands even when
// the directory could not be told.
func (c *Controller) RemoveCall(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" && id == c.session.Target() {
		return ErrSessionActive
	}
	err := c.queue.Remove(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return ErrNotFound
	}
	if c.selected == id {
		c.setSelection("")
	}
	c.publishQueue()
	c.auditCall(ctx, audit.EventTypeQueueRemoved, id, "", "")
	if err != nil {
		c.notice("Remove failed", err.Error())
		return fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	return nil
}

func (c *Controller) SetFilter(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.SetFilter(strings.TrimSpace(text))
	c.publishQueue()
}

// LogCallOutcome persists the oldest unlogged call outcome with the agent's
// note. Outcomes are logged in the order the calls completed.
func (c *Controller) LogCallOutcome(ctx context.Context, note string) (directory.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return directory.Outcome{}, ErrNoOutcome
	}
	out := c.pending[0]
	out.Note = strings.TrimSpace(note)
	if err := c.dir.LogOutcome(ctx, out); err != nil {
		return out, fmt.Errorf("%w: log outcome: %w", ErrDirectory, err)
	}
	c.pending = c.pending[1:]
	return out, nil
}

func (c *Controller) advanceAutoDial(ctx context.Context) {
	if !c.auto.Active() || !c.session.Idle() {
		return
	}
	if c.cfg.AutoDialPause <= 0 {
		c.dialNext(ctx)
		return
	}
	if c.advance != nil {
		c.advance.Stop()
	}
	c.advance = time.AfterFunc(c.cfg.AutoDialPause, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.advance = nil
		ctx := c.runCtx
		if ctx.Err() != nil || !c.auto.Active() || !c.session.Idle() {
			return
		}
		c.dialNext(ctx)
	})
}

// dialNext places the next dialable record of the pull-list.
func (c *Controller) dialNext(ctx context.Context) {
	for {
		id, ok := c.auto.Next()
		if !ok {
			c.log.Info("auto-dial finished")
			c.publishAutoDial()
			c.auditAgent(ctx, audit.EventTypeAutoDialStopped, "exhausted", "")
			return
		}
		if rec, found := c.queue.Get(id); !found || rec.State == calls.StateDone {
			continue
		}
		err := c.place(ctx, id, true)
		switch {
		case err == nil:
			c.publishAutoDial()
			return
		case errors.Is(err, ErrMissingNumber), errors.Is(err, ErrNotFound):
			continue
		default:
			c.log.Warn("auto-dial stopped", "id", id, "err", err)
			c.stopAutoDial(ctx, err.Error())
			return
		}
	}
}

func (c *Controller) stopAutoDial(ctx context.Context, reason string) {
	c.auto.Stop()
	if c.advance != nil {
		c.advance.Stop()
		c.advance = nil
	}
	c.log.Info("auto-dial stopped", "reason", reason)
	c.publishAutoDial()
	c.auditAgent(ctx, audit.EventTypeAutoDialStopped, reason, "")
}

func (c *Controller) openGates() {
	for _, g := range c.gates {
		close(g)
	}
	c.gates = nil
}

func (c *Controller) publish(t EventType, data any) { c.pub.Broadcast(string(t), data) }

func (c *Controller) publishSession() { c.publish(EventSessionStateChanged, c.session.Info()) }

func (c *Controller) publishQueue() { c.publish(EventQueueChanged, c.queueView()) }

func (c *Controller) publishAutoDial() { c.publish(EventAutoDialStateChanged, c.autoDialView()) }

func (c *Controller) setSelection(id string) {
	c.selected = id
	c.publish(EventSelectionChanged, SelectionView{ID: id})
}

func (c *Controller) notice(title, body string) {
	c.publish(EventNotice, Notice{Title: title, Body: body})
}

func (c *Controller) queueView() QueueView {
	return QueueView{Records: c.queue.Visible(), Filter: c.queue.Filter()}
}

func (c *Controller) autoDialView() AutoDialView {
	return AutoDialView{Active: c.auto.Active(), Remaining: len(c.auto.Remaining())}
}

func (c *Controller) auditCall(ctx context.Context, typ audit.EventType, id, number, msg string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.LogCall(ctx, c.cfg.AgentID, typ, id, number, msg); err != nil {
		c.log.Warn("audit append failed", "type", string(typ), "err", err)
	}
}

func (c *Controller) auditAgent(ctx context.Context, typ audit.EventType, msg, metadata string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.LogAgent(ctx, c.cfg.AgentID, typ, msg, metadata); err != nil {
		c.log.Warn("audit append failed", "type", string(typ), "err", err)
	}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
