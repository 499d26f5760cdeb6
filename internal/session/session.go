package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"softphone-dialer/internal/telephony"
)

var (
	ErrNotIdle           = errors.New("session: a call is already active")
	ErrNotActive         = errors.New("session: no active call")
	ErrBlocked           = errors.New("session: blocked by signaling error")
	ErrNoNumber          = errors.New("session: number required")
	ErrInvalidTransition = errors.New("session: invalid transition")
)

// Signaler is the command half of the signaling client.
type Signaler interface {
	PlaceCall(ctx context.Context, number string) error
	Hangup(ctx context.Context) error
	SendDigits(ctx context.Context, digits string) error
	Transfer(ctx context.Context, number string) error
}

// Outcome describes what a signaling event or command did to the session.
type Outcome struct {
	From    State
	To      State
	Effects []Effect

	// Target is the record the session was bound to when the event arrived.
	Target  string
	Number  string
	Inbound bool
	Message string
}

func (o Outcome) Changed() bool { return o.From != o.To }

func (o Outcome) Has(e Effect) bool {
	for _, v := range o.Effects {
		if v == e {
			return true
		}
	}
	return false
}

// Info is a read-only view of the session.
type Info struct {
	State     State     `json:"state"`
	Target    string    `json:"target,omitempty"`
	Number    string    `json:"number,omitempty"`
	Inbound   bool      `json:"inbound,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Session is the state machine around the one signaling exchange an agent
// may have at a time. It is not safe for concurrent use.
type Session struct {
	sig   Signaler
	log   *slog.Logger
	clock func() time.Time

	state State
	// resume is the state a temporary error returns to. Signaling events
	// received while blocked are applied to it.
	resume State

	target    string
	number    string
	inbound   bool
	startedAt time.Time
	lastError string
}

func New(sig Signaler, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{sig: sig, log: log, clock: time.Now}
}

func (s *Session) State() State { return s.state }

// Idle reports whether a new call may be started.
func (s *Session) Idle() bool { return s.state == Idle }

func (s *Session) Target() string { return s.target }

func (s *Session) Info() Info {
	return Info{
		State:     s.state,
		Target:    s.target,
		Number:    s.number,
		Inbound:   s.inbound,
		StartedAt: s.startedAt,
		LastError: s.lastError,
	}
}

// effective is the state signaling events are evaluated against.
func (s *Session) effective() State {
	if s.state == ErrorTemporary {
		return s.resume
	}
	return s.state
}

func (s *Session) checkBlocked() error {
	if s.state == ErrorTemporary || s.state == ErrorFatal {
		return ErrBlocked
	}
	return nil
}

// Start places an outbound call for target. The session stays Idle when the
// signaling client refuses the call.
func (s *Session) Start(ctx context.Context, target, number string) (Outcome, error) {
	if err := s.checkBlocked(); err != nil {
		return Outcome{}, err
	}
	if s.state != Idle {
		return Outcome{}, ErrNotIdle
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return Outcome{}, ErrNoNumber
	}
	if err := s.sig.PlaceCall(ctx, number); err != nil {
		return Outcome{}, fmt.Errorf("place call: %w", err)
	}
	s.target = target
	s.number = number
	s.inbound = false
	s.startedAt = s.clock()
	s.lastError = ""
	return s.moveTo(s.outcome(), Dialing), nil
}

func (s *Session) Hangup(ctx context.Context) error {
	if err := s.checkBlocked(); err != nil {
		return err
	}
	if !s.state.Active() {
		return ErrNotActive
	}
	return s.sig.Hangup(ctx)
}

func (s *Session) Transfer(ctx context.Context, number string) error {
	if err := s.checkBlocked(); err != nil {
		return err
	}
	if s.state != Connected {
		return ErrNotActive
	}
	if strings.TrimSpace(number) == "" {
		return ErrNoNumber
	}
	return s.sig.Transfer(ctx, number)
}

func (s *Session) SendDigits(ctx context.Context, digits string) error {
	if err := s.checkBlocked(); err != nil {
		return err
	}
	if !s.state.Active() {
		return ErrNotActive
	}
	return s.sig.SendDigits(ctx, digits)
}

// Resolve clears an error state. A temporary error returns to the state it
// interrupted; a fatal error returns to Idle once the line was reconfigured.
func (s *Session) Resolve() (Outcome, error) {
	switch s.state {
	case ErrorTemporary:
		s.lastError = ""
		return s.moveTo(s.outcome(), s.resume), nil
	case ErrorFatal:
		s.lastError = ""
		s.clearTarget()
		return s.moveTo(s.outcome(), Idle), nil
	default:
		return Outcome{}, ErrInvalidTransition
	}
}

// Finish completes a hang-up once the directory acknowledged it.
func (s *Session) Finish() (Outcome, error) {
	if s.effective() != Ending {
		return Outcome{}, ErrInvalidTransition
	}
	o := Outcome{From: Ending, To: Idle, Target: s.target, Number: s.number}
	s.clearTarget()
	if s.state == ErrorTemporary {
		s.resume = Idle
		o.From, o.To = ErrorTemporary, ErrorTemporary
		return o, nil
	}
	s.state = Idle
	s.log.Debug("session transition", "from", Ending.String(), "to", Idle.String())
	return o, nil
}

// HandleEvent applies one signaling event. Events that do not apply to the
// current state are ignored and reported as an unchanged outcome.
func (s *Session) HandleEvent(ev telephony.Event) Outcome {
	o := s.outcome()

	switch ev.Type {
	case telephony.EventError:
		return s.handleError(o, ev)
	case telephony.EventCustomerUnavailable:
		o.Effects = []Effect{EffectNotice}
		return o
	}

	from := s.effective()

	if s.inbound {
		if from == Connected && (ev.Type == telephony.EventEndIncomingCall || ev.Type == telephony.EventBye) {
			s.clearTarget()
			return s.apply(o, Idle, []Effect{EffectIncomingEnded})
		}
		s.log.Debug("ignored signaling event", "state", from.String(), "event", string(ev.Type))
		return o
	}

	r, ok := transitions[key{from, ev.Type}]
	if !ok {
		s.log.Debug("ignored signaling event", "state", from.String(), "event", string(ev.Type))
		return o
	}

	switch {
	case ev.Type == telephony.EventIncomingCall:
		s.inbound = true
		s.number = ev.Number
		s.startedAt = s.clock()
		o.Inbound = true
		o.Number = ev.Number
	case r.to == Idle:
		s.clearTarget()
	}
	return s.apply(o, r.to, r.effects)
}

func (s *Session) handleError(o Outcome, ev telephony.Event) Outcome {
	s.lastError = ev.Message
	o.Message = ev.Message

	// A fatal line stays fatal until resolved; later errors only replace the message.
	if s.state == ErrorFatal {
		o.Effects = []Effect{EffectFatal}
		return o
	}
	if !ev.Temporary {
		s.clearTarget()
		s.resume = Idle
		o.Effects = []Effect{EffectFatal}
		return s.moveTo(o, ErrorFatal)
	}
	if s.state != ErrorTemporary {
		s.resume = s.state
	}
	o.Effects = []Effect{EffectBlocked}
	return s.moveTo(o, ErrorTemporary)
}

// apply moves the effective state. While blocked, only the resume state moves.
func (s *Session) apply(o Outcome, to State, effects []Effect) Outcome {
	o.Effects = effects
	if s.state == ErrorTemporary {
		s.log.Debug("session transition while blocked", "from", s.resume.String(), "to", to.String())
		s.resume = to
		return o
	}
	return s.moveTo(o, to)
}

func (s *Session) outcome() Outcome {
	return Outcome{From: s.state, To: s.state, Target: s.target, Number: s.number, Inbound: s.inbound}
}

func (s *Session) moveTo(o Outcome, to State) Outcome {
	o.To = to
	if s.state != to {
		s.log.Debug("session transition", "from", s.state.String(), "to", to.String())
	}
	s.state = to
	return o
}

func (s *Session) clearTarget() {
	s.target = ""
	s.number = ""
	s.inbound = false
	s.startedAt = time.Time{}
}
