package telephony

import (
	"context"
	"errors"
	"time"
)

// SignalingClient is the provider-agnostic softphone line used by the dialer.
//
// Rules:
// - Commands return once the request was handed to the network; progress is
// reported asynchronously on Events().
// - Events are delivered in arrival order on a single channel that is closed by Close.
type SignalingClient interface {
	PlaceCall(ctx context.Context, number string) error
	Hangup(ctx context.Context) error
	SendDigits(ctx context.Context, digits string) error
	Transfer(ctx context.Context, number string) error

	Events() <-chan Event
	Close() error
}

type EventType string

const (
	EventRinging             EventType = "ringing"
	EventAccepted            EventType = "accepted"
	EventCancelled           EventType = "cancelled"
	EventRejected            EventType = "rejected"
	EventBye                 EventType = "bye"
	EventError               EventType = "error"
	EventCustomerUnavailable EventType = "customer_unavailable"
	EventIncomingCall        EventType = "incoming_call"
	EventEndIncomingCall     EventType = "end_incoming_call"
)

// Event is one signaling notification.
type Event struct {
	Type EventType `json:"type"`

	// Message and Temporary are set for EventError.
	Message   string `json:"message,omitempty"`
	Temporary bool   `json:"temporary,omitempty"`

	// Number is the remote party for EventIncomingCall.
	Number string `json:"number,omitempty"`

	At time.Time `json:"at"`
}

var (
	ErrNoActiveCall = errors.New("telephony: no active call")
	ErrCallActive   = errors.New("telephony: call already in progress")
	ErrClosed       = errors.New("telephony: client closed")
	ErrInvalidInput = errors.New("telephony: invalid input")
)

const eventBuffer = 64
