package dialer

import (
	"errors"
	"fmt"

	"softphone-dialer/internal/session"
	"softphone-dialer/internal/telephony"
)

var (
	ErrMissingNumber = errors.New("dialer: call has no phone number")
	ErrSessionActive = errors.New("dialer: a call is already in progress")
	ErrNoSession     = errors.New("dialer: no call in progress")
	ErrBlocked       = errors.New("dialer: line blocked until the error is resolved")
	ErrNotBlocked    = errors.New("dialer: nothing to resolve")
	ErrNothingToDial = errors.New("dialer: nothing to dial")
	ErrSelectionBusy = errors.New("dialer: selection is driven by auto-dial")
	ErrNotFound      = errors.New("dialer: call not found")
	ErrNoOutcome     = errors.New("dialer: no completed call to log")
	ErrLineBusy      = errors.New("dialer: line held by another dialer")
	ErrInvalidInput  = errors.New("dialer: invalid input")
	ErrDirectory     = errors.New("dialer: directory failure")
	ErrSignaling     = errors.New("dialer: signaling failure")
)

// sessionErr translates session and signaling errors into dialer errors.
func sessionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrBlocked):
		return ErrBlocked
	case errors.Is(err, session.ErrNotIdle):
		return ErrSessionActive
	case errors.Is(err, session.ErrNotActive):
		return ErrNoSession
	case errors.Is(err, session.ErrNoNumber):
		return ErrMissingNumber
	case errors.Is(err, telephony.ErrInvalidInput):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %w", ErrSignaling, err)
	}
}
