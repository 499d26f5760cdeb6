package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DemoConfig tunes the simulated line.
type DemoConfig struct {
	RingAfter   time.Duration
	AnswerAfter time.Duration

	// Reject decides which numbers refuse the call. Defaults to numbers
	// ending in "0".
	Reject func(number string) bool
}

func (c DemoConfig) withDefaults() DemoConfig {
	out := c
	if out.RingAfter <= 0 {
		out.RingAfter = 500 * time.Millisecond
	}
	if out.AnswerAfter <= 0 {
		out.AnswerAfter = 2 * time.Second
	}
	if out.Reject == nil {
		out.Reject = func(number string) bool { return strings.HasSuffix(number, "0") }
	}
	return out
}

// DemoClient simulates a PBX so the dialer can be exercised without one.
type DemoClient struct {
	cfg DemoConfig
	log *slog.Logger

	events chan Event

	mu     sync.Mutex
	call   *demoCall
	closed bool
}

type demoCall struct {
	number   string
	inbound  bool
	answered bool
	stop     chan struct{}
}

func NewDemoClient(cfg DemoConfig, log *slog.Logger) *DemoClient {
	if log == nil {
		log = slog.Default()
	}
	return &DemoClient{
		cfg:    cfg.withDefaults(),
		log:    log.With("component", "demo_line"),
		events: make(chan Event, eventBuffer),
	}
}

func (c *DemoClient) Events() <-chan Event { return c.events }

func (c *DemoClient) PlaceCall(ctx context.Context, number string) error {
	number = normalizeNumber(number)
	if number == "" {
		return fmt.Errorf("%w: number", ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.call != nil {
		return ErrCallActive
	}
	call := &demoCall{number: number, stop: make(chan struct{})}
	c.call = call
	c.log.Debug("demo call placed", "number", number)
	go c.progress(call)
	return nil
}

func (c *DemoClient) progress(call *demoCall) {
	if !c.sleep(call, c.cfg.RingAfter) {
		return
	}
	c.mu.Lock()
	if c.call != call {
		c.mu.Unlock()
		return
	}
	c.emitLocked(Event{Type: EventRinging})
	c.mu.Unlock()

	if !c.sleep(call, c.cfg.AnswerAfter) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != call {
		return
	}
	if c.cfg.Reject(call.number) {
		c.call = nil
		c.emitLocked(Event{Type: EventRejected})
		return
	}
	call.answered = true
	c.emitLocked(Event{Type: EventAccepted})
}

func (c *DemoClient) sleep(call *demoCall, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-call.stop:
		return false
	}
}

func (c *DemoClient) Hangup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.call
	if call == nil {
		return ErrNoActiveCall
	}
	close(call.stop)
	c.call = nil
	switch {
	case call.inbound:
		c.emitLocked(Event{Type: EventEndIncomingCall})
	case call.answered:
		c.emitLocked(Event{Type: EventBye})
	default:
		c.emitLocked(Event{Type: EventCancelled})
	}
	return nil
}

func (c *DemoClient) SendDigits(ctx context.Context, digits string) error {
	for _, r := range digits {
		if !isDTMF(r) {
			return fmt.Errorf("%w: digit %q", ErrInvalidInput, r)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil {
		return ErrNoActiveCall
	}
	c.log.Debug("demo dtmf", "digits", digits)
	return nil
}

// Transfer hands the remote party over and ends the agent's leg.
func (c *DemoClient) Transfer(ctx context.Context, number string) error {
	if normalizeNumber(number) == "" {
		return fmt.Errorf("%w: number", ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.call
	if call == nil || !(call.answered || call.inbound) {
		return ErrNoActiveCall
	}
	close(call.stop)
	c.call = nil
	if call.inbound {
		c.emitLocked(Event{Type: EventEndIncomingCall})
	} else {
		c.emitLocked(Event{Type: EventBye})
	}
	return nil
}

// Ring simulates an inbound call from number. It fails while a call is active.
func (c *DemoClient) Ring(number string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.call != nil {
		return ErrCallActive
	}
	c.call = &demoCall{number: number, inbound: true, answered: true, stop: make(chan struct{})}
	c.emitLocked(Event{Type: EventIncomingCall, Number: number})
	return nil
}

// RemoteHangup simulates the other party ending the call.
func (c *DemoClient) RemoteHangup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.call
	if call == nil || !call.answered {
		return ErrNoActiveCall
	}
	close(call.stop)
	c.call = nil
	if call.inbound {
		c.emitLocked(Event{Type: EventEndIncomingCall})
	} else {
		c.emitLocked(Event{Type: EventBye})
	}
	return nil
}

// Fail injects a line error, as a lost registration would produce.
func (c *DemoClient) Fail(message string, temporary bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(Event{Type: EventError, Message: message, Temporary: temporary})
}

func (c *DemoClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.call != nil {
		close(c.call.stop)
		c.call = nil
	}
	close(c.events)
	return nil
}

func (c *DemoClient) emitLocked(ev Event) {
	if c.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case c.events <- ev:
	default:
		c.log.Error("signaling event dropped", "type", string(ev.Type))
	}
}

var _ SignalingClient = (*DemoClient)(nil)
