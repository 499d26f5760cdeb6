package dialer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"softphone-dialer/internal/calls"
	"softphone-dialer/internal/directory"
	"softphone-dialer/internal/session"
)

// PlaceCallByNumber creates a call task for number and dials it once the
// task is visible in the queue.
func (c *Controller) PlaceCallByNumber(ctx context.Context, number string) (calls.Record, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return calls.Record{}, ErrMissingNumber
	}
	return c.placeAdHoc(ctx, directory.AdHocRequest{Number: number})
}

// PlaceCallForRecord creates a call task for a partner or opportunity and
// dials it once the task is visible in the queue.
func (c *Controller) PlaceCallForRecord(ctx context.Context, ref calls.Ref) (calls.Record, error) {
	if !ref.Valid() {
		return calls.Record{}, ErrInvalidInput
	}
	return c.placeAdHoc(ctx, directory.AdHocRequest{Ref: &ref})
}

func (c *Controller) placeAdHoc(ctx context.Context, req directory.AdHocRequest) (calls.Record, error) {
	rec, gate, err := c.createAdHoc(ctx, req)
	if err != nil {
		return calls.Record{}, err
	}
	if err := c.RefreshQueue(ctx, false); err != nil {
		return rec, err
	}
	select {
	case <-gate:
	case <-ctx.Done():
		return rec, ctx.Err()
	}
	return rec, c.PlaceCall(ctx, rec.ID)
}

// createAdHoc materialises the task and registers the gate the next queue
// refresh opens.
func (c *Controller) createAdHoc(ctx context.Context, req directory.AdHocRequest) (calls.Record, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.session.State() {
	case session.Idle:
	case session.ErrorTemporary, session.ErrorFatal:
		return calls.Record{}, nil, ErrBlocked
	default:
		return calls.Record{}, nil, ErrSessionActive
	}

	rec, err := c.dir.CreateAdHocCall(ctx, req)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return calls.Record{}, nil, ErrNotFound
		}
		c.notice("Call creation failed", err.Error())
		return calls.Record{}, nil, fmt.Errorf("%w: create call: %w", ErrDirectory, err)
	}
	if err := c.queue.Add(rec); err != nil {
		return calls.Record{}, nil, fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	// The call must be on screen when it starts.
	if !rec.Matches(c.queue.Filter()) {
		c.queue.SetFilter("")
	}
	gate := make(chan struct{})
	c.gates = append(c.gates, gate)
	c.log.Debug("ad-hoc call created", "id", rec.ID)
	return rec, gate, nil
}
