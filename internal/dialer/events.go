package dialer

import (
	"softphone-dialer/internal/calls"
)

// EventType names a presentation event raised by the controller.
type EventType string

const (
	EventSessionStateChanged  EventType = "session_state_changed"
	EventQueueChanged         EventType = "queue_changed"
	EventSelectionChanged     EventType = "selection_changed"
	EventAutoDialStateChanged EventType = "auto_dial_state_changed"
	EventNotice               EventType = "notice"
	EventBlockingError        EventType = "blocking_error"
	EventOutcomeReady         EventType = "outcome_ready"
)

// Publisher fans presentation events out to whoever renders the dialer.
// Broadcast must not block.
type Publisher interface {
	Broadcast(eventType string, data any)
}

type QueueView struct {
	Records []calls.Record `json:"records"`
	Filter  string         `json:"filter,omitempty"`
}

type SelectionView struct {
	ID string `json:"id"`
}

type AutoDialView struct {
	Active    bool `json:"active"`
	Remaining int  `json:"remaining"`
}

type Notice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type BlockingError struct {
	Message    string `json:"message"`
	Resolvable bool   `json:"resolvable"`
}

type discard struct{}

func (discard) Broadcast(string, any) {}

const customerUnavailable = "The customer is temporary unavailable. Please try later."
