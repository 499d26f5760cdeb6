package session

import (
	"fmt"

	"softphone-dialer/internal/telephony"
)

// State is the lifecycle position of the single call session.
type State int

const (
	Idle State = iota
	Dialing
	Ringing
	Connected
	Ending
	ErrorTemporary
	ErrorFatal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dialing:
		return "dialing"
	case Ringing:
		return "ringing"
	case Connected:
		return "connected"
	case Ending:
		return "ending"
	case ErrorTemporary:
		return "error_temporary"
	case ErrorFatal:
		return "error_fatal"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= ErrorFatal; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", b)
}

// Active reports whether a signaling exchange is in progress.
func (s State) Active() bool {
	return s == Dialing || s == Ringing || s == Connected
}

// Effect is a side effect the owner of the session must carry out after a transition.
type Effect int

const (
	EffectMarkInCall Effect = iota + 1
	EffectCallInitiated
	EffectCallRejected
	EffectCallEnded
	EffectIncoming
	EffectIncomingEnded
	EffectNotice
	EffectBlocked
	EffectFatal
)

func (e Effect) String() string {
	switch e {
	case EffectMarkInCall:
		return "mark_in_call"
	case EffectCallInitiated:
		return "call_initiated"
	case EffectCallRejected:
		return "call_rejected"
	case EffectCallEnded:
		return "call_ended"
	case EffectIncoming:
		return "incoming"
	case EffectIncomingEnded:
		return "incoming_ended"
	case EffectNotice:
		return "notice"
	case EffectBlocked:
		return "blocked"
	case EffectFatal:
		return "fatal"
	default:
		return "none"
	}
}

type key struct {
	from  State
	event telephony.EventType
}

type rule struct {
	to      State
	effects []Effect
}

// transitions covers outbound sessions. Inbound sessions, errors and
// informational events are handled before the table is consulted.
var transitions = map[key]rule{
	{Idle, telephony.EventIncomingCall}: {Connected, []Effect{EffectIncoming}},

	{Dialing, telephony.EventRinging}:   {Ringing, []Effect{EffectMarkInCall}},
	{Dialing, telephony.EventAccepted}:  {Connected, []Effect{EffectMarkInCall, EffectCallInitiated}},
	{Dialing, telephony.EventCancelled}: {Idle, []Effect{EffectCallRejected}},
	{Dialing, telephony.EventRejected}:  {Idle, []Effect{EffectCallRejected}},

	{Ringing, telephony.EventAccepted}:  {Connected, []Effect{EffectCallInitiated}},
	{Ringing, telephony.EventCancelled}: {Idle, []Effect{EffectCallRejected}},
	{Ringing, telephony.EventRejected}:  {Idle, []Effect{EffectCallRejected}},

	{Connected, telephony.EventCancelled}: {Idle, []Effect{EffectCallRejected}},
	{Connected, telephony.EventRejected}:  {Idle, []Effect{EffectCallRejected}},
	{Connected, telephony.EventBye}:       {Ending, []Effect{EffectCallEnded}},
}
