package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"softphone-dialer/internal/telephony"
)

type fakeSignaler struct {
	placed    []string
	hangups   int
	digits    []string
	transfers []string
	placeErr  error
}

func (f *fakeSignaler) PlaceCall(ctx context.Context, number string) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, number)
	return nil
}

func (f *fakeSignaler) Hangup(ctx context.Context) error { f.hangups++; return nil }

func (f *fakeSignaler) SendDigits(ctx context.Context, d string) error {
	f.digits = append(f.digits, d)
	return nil
}

func (f *fakeSignaler) Transfer(ctx context.Context, number string) error {
	f.transfers = append(f.transfers, number)
	return nil
}

func ev(t telephony.EventType) telephony.Event { return telephony.Event{Type: t} }

func TestSession_OutboundHappyPath(t *testing.T) {
	sig := &fakeSignaler{}
	s := New(sig, nil)
	ctx := context.Background()

	o, err := s.Start(ctx, "1", "555")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if o.From != Idle || o.To != Dialing || len(sig.placed) != 1 {
		t.Fatalf("unexpected start outcome %+v", o)
	}

	o = s.HandleEvent(ev(telephony.EventRinging))
	if o.To != Ringing || !o.Has(EffectMarkInCall) || o.Target != "1" {
		t.Fatalf("unexpected ringing outcome %+v", o)
	}
	o = s.HandleEvent(ev(telephony.EventAccepted))
	if o.To != Connected || !o.Has(EffectCallInitiated) {
		t.Fatalf("unexpected accepted outcome %+v", o)
	}

	if err := s.SendDigits(ctx, "5"); err != nil {
		t.Fatalf("digits: %v", err)
	}
	if err := s.Transfer(ctx, "777"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if s.State() != Connected {
		t.Fatalf("transfer must not change state")
	}

	o = s.HandleEvent(ev(telephony.EventBye))
	if o.To != Ending || !o.Has(EffectCallEnded) || o.Target != "1" {
		t.Fatalf("unexpected bye outcome %+v", o)
	}
	o, err = s.Finish()
	if err != nil || o.To != Idle || o.Target != "1" {
		t.Fatalf("finish: %+v %v", o, err)
	}
	if !s.Idle() || s.Target() != "" {
		t.Fatalf("expected idle session without target")
	}
}

func TestSession_StartRejections(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	ctx := context.Background()

	if _, err := s.Start(ctx, "1", " "); !errors.Is(err, ErrNoNumber) {
		t.Fatalf("expected ErrNoNumber, got %v", err)
	}
	if _, err := s.Start(ctx, "1", "555"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Start(ctx, "2", "556"); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("expected ErrNotIdle, got %v", err)
	}

	boom := errors.New("no line")
	s = New(&fakeSignaler{placeErr: boom}, nil)
	if _, err := s.Start(ctx, "1", "555"); !errors.Is(err, boom) {
		t.Fatalf("expected signaling error, got %v", err)
	}
	if !s.Idle() {
		t.Fatalf("session must stay idle when the call is refused")
	}
}

func TestSession_RejectedReturnsToIdle(t *testing.T) {
	for _, typ := range []telephony.EventType{telephony.EventRejected, telephony.EventCancelled} {
		s := New(&fakeSignaler{}, nil)
		_, _ = s.Start(context.Background(), "1", "555")
		s.HandleEvent(ev(telephony.EventRinging))

		o := s.HandleEvent(ev(typ))
		if o.To != Idle || !o.Has(EffectCallRejected) || o.Target != "1" {
			t.Fatalf("%s: unexpected outcome %+v", typ, o)
		}
		if s.Target() != "" {
			t.Fatalf("%s: target must be cleared", typ)
		}
	}
}

func TestSession_IgnoresEventsOutsideTable(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	o := s.HandleEvent(ev(telephony.EventBye))
	if o.Changed() || len(o.Effects) != 0 {
		t.Fatalf("bye while idle should be ignored: %+v", o)
	}
	_, _ = s.Start(context.Background(), "1", "555")
	if o := s.HandleEvent(ev(telephony.EventBye)); o.Changed() {
		t.Fatalf("bye while dialing should be ignored: %+v", o)
	}
}

func TestSession_CustomerUnavailableIsInformational(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	_, _ = s.Start(context.Background(), "1", "555")
	o := s.HandleEvent(ev(telephony.EventCustomerUnavailable))
	if o.Changed() || !o.Has(EffectNotice) || s.State() != Dialing {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestSession_TemporaryErrorBlocksUntilResolved(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	ctx := context.Background()
	_, _ = s.Start(ctx, "1", "555")
	s.HandleEvent(ev(telephony.EventRinging))

	o := s.HandleEvent(telephony.Event{Type: telephony.EventError, Message: "lost registration", Temporary: true})
	if o.To != ErrorTemporary || !o.Has(EffectBlocked) {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if s.Target() != "1" {
		t.Fatalf("temporary error must keep the target")
	}
	if err := s.Hangup(ctx); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	// progress keeps flowing underneath the block
	o = s.HandleEvent(ev(telephony.EventAccepted))
	if !o.Has(EffectCallInitiated) || s.State() != ErrorTemporary {
		t.Fatalf("unexpected blocked progress %+v", o)
	}

	o, err := s.Resolve()
	if err != nil || o.To != Connected {
		t.Fatalf("resolve: %+v %v", o, err)
	}
	if _, err := s.Resolve(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSession_FatalErrorDropsTarget(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	ctx := context.Background()
	_, _ = s.Start(ctx, "1", "555")

	o := s.HandleEvent(telephony.Event{Type: telephony.EventError, Message: "bad credentials"})
	if o.To != ErrorFatal || !o.Has(EffectFatal) || o.Target != "1" {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if s.Target() != "" {
		t.Fatalf("fatal error must drop the target")
	}
	if _, err := s.Start(ctx, "2", "556"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if o, err := s.Resolve(); err != nil || o.To != Idle {
		t.Fatalf("resolve: %+v %v", o, err)
	}
	if s.Info().LastError != "" {
		t.Fatalf("expected error cleared")
	}
}

func TestSession_FatalErrorAbsorbsLaterErrors(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	_, _ = s.Start(context.Background(), "1", "555")
	s.HandleEvent(telephony.Event{Type: telephony.EventError, Message: "bad credentials"})

	o := s.HandleEvent(telephony.Event{Type: telephony.EventError, Message: "network down", Temporary: true})
	if o.Changed() || s.State() != ErrorFatal {
		t.Fatalf("fatal state must survive a temporary error, got %+v", o)
	}
	if !o.Has(EffectFatal) || s.Info().LastError != "network down" {
		t.Fatalf("expected latest error reported as fatal, got %+v %q", o, s.Info().LastError)
	}
	if o, err := s.Resolve(); err != nil || o.To != Idle {
		t.Fatalf("resolve: %+v %v", o, err)
	}
}

func TestSession_InboundCall(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	o := s.HandleEvent(telephony.Event{Type: telephony.EventIncomingCall, Number: "+3222"})
	if o.To != Connected || !o.Inbound || !o.Has(EffectIncoming) {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if err := s.Hangup(context.Background()); err != nil {
		t.Fatalf("hangup inbound: %v", err)
	}
	o = s.HandleEvent(ev(telephony.EventEndIncomingCall))
	if o.To != Idle || !o.Has(EffectIncomingEnded) {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if s.Info().Inbound {
		t.Fatalf("inbound flag must be cleared")
	}
}

func TestSession_CommandsRequireActiveCall(t *testing.T) {
	s := New(&fakeSignaler{}, nil)
	ctx := context.Background()
	if err := s.Hangup(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if err := s.SendDigits(ctx, "1"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	_, _ = s.Start(ctx, "1", "555")
	if err := s.Transfer(ctx, "777"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("transfer before connect should fail, got %v", err)
	}
}

func TestStateStrings(t *testing.T) {
	for st := Idle; st <= ErrorFatal; st++ {
		if st.String() == "unknown" {
			t.Fatalf("missing name for state %d", st)
		}
	}
}

func TestState_JSONRoundTrip(t *testing.T) {
	for st := Idle; st <= ErrorFatal; st++ {
		b, err := json.Marshal(Info{State: st})
		if err != nil {
			t.Fatalf("marshal %s: %v", st, err)
		}
		var got Info
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got.State != st {
			t.Fatalf("round trip of %s gave %s", st, got.State)
		}
	}

	var st State
	if err := st.UnmarshalText([]byte("on_hold")); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}
