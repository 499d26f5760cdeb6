package dialer

import (
	"context"
	"time"

	"softphone-dialer/internal/audit"
	"softphone-dialer/internal/calls"
	"softphone-dialer/internal/directory"
	"softphone-dialer/internal/session"
	"softphone-dialer/internal/telephony"
)

// Run feeds signaling events to the controller in arrival order until ctx is
// done or the channel is closed.
func (c *Controller) Run(ctx context.Context, events <-chan telephony.Event) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				c.log.Info("signaling event stream closed")
				return nil
			}
			c.HandleSignal(ctx, ev)
		}
	}
}

// HandleSignal applies one signaling event and carries out its effects.
func (c *Controller) HandleSignal(ctx context.Context, ev telephony.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	startedAt := c.session.Info().StartedAt
	o := c.session.HandleEvent(ev)
	c.log.Debug("signaling event", "type", string(ev.Type), "from", o.From.String(), "to", o.To.String())
	if o.Changed() {
		c.publishSession()
	}

	idleAgain := false
	for _, e := range o.Effects {
		switch e {
		case session.EffectMarkInCall:
			c.inCall = o.Target
			c.queue.PinInCall(o.Target)
			c.publishQueue()

		case session.EffectCallInitiated:
			if err := c.dir.MarkCallInitiated(ctx, o.Target); err != nil {
				c.directoryFailed("mark call initiated", o.Target, err)
			}
			if c.cfg.AlwaysTransfer && c.cfg.ExternalPhone != "" {
				if err := c.session.Transfer(ctx, c.cfg.ExternalPhone); err != nil {
					c.log.Warn("automatic transfer failed", "id", o.Target, "err", err)
					c.notice("Transfer failed", err.Error())
				}
			}

		case session.EffectCallRejected:
			c.revert(o.Target)
			if err := c.dir.MarkCallRejected(ctx, o.Target); err != nil {
				c.directoryFailed("mark call rejected", o.Target, err)
			}
			c.auditCall(ctx, audit.EventTypeCallRejected, o.Target, o.Number, string(ev.Type))
			c.autoCall = false
			idleAgain = true

		case session.EffectCallEnded:
			c.complete(ctx, o, startedAt)
			idleAgain = true

		case session.EffectIncoming:
			if err := c.acquireLease(ctx); err != nil {
				c.log.Warn("inbound call without line lease", "number", o.Number, "err", err)
				c.notice("Line conflict", "Another dialer holds this agent's line.")
			}
			c.notice("Incoming call", o.Number)
			c.auditCall(ctx, audit.EventTypeInboundCall, "", o.Number, "")

		case session.EffectIncomingEnded:
			c.log.Info("inbound call ended", "number", o.Number)
			idleAgain = true

		case session.EffectNotice:
			c.notice("Customer unavailable", customerUnavailable)

		case session.EffectBlocked:
			c.publish(EventBlockingError, BlockingError{Message: o.Message, Resolvable: true})
			c.auditAgent(ctx, audit.EventTypeLineError, o.Message, "temporary")

		case session.EffectFatal:
			c.revert(o.Target)
			c.autoCall = false
			if c.auto.Active() {
				c.stopAutoDial(ctx, "line error")
			}
			c.publish(EventBlockingError, BlockingError{Message: o.Message, Resolvable: false})
			c.auditAgent(ctx, audit.EventTypeLineError, o.Message, "fatal")
		}
	}

	if c.lineFree() {
		c.releaseLease(ctx)
	}
	if idleAgain {
		c.advanceAutoDial(ctx)
	}
}

// revert puts an interrupted call back to pending.
func (c *Controller) revert(id string) {
	if id == "" {
		return
	}
	if c.inCall == id {
		c.inCall = ""
	}
	if err := c.queue.SetState(id, calls.StatePending); err == nil {
		c.publishQueue()
	}
}

// complete closes a hung-up call: the directory reports the measured
// duration, the record is marked done and the outcome is packaged.
func (c *Controller) complete(ctx context.Context, o session.Outcome, startedAt time.Time) {
	secs, err := c.dir.MarkCallEnded(ctx, o.Target)
	if err != nil {
		c.directoryFailed("mark call ended", o.Target, err)
		if !startedAt.IsZero() {
			secs = time.Since(startedAt).Seconds()
		}
	}

	rec, _ := c.queue.Get(o.Target)
	if err := c.queue.Complete(o.Target, secs); err != nil {
		c.log.Debug("completed call no longer queued", "id", o.Target)
	}
	if c.inCall == o.Target {
		c.inCall = ""
	}
	if _, err := c.session.Finish(); err != nil {
		c.log.Error("finish session", "err", err)
	}
	c.publishSession()
	c.publishQueue()

	out := directory.Outcome{
		CallID:          o.Target,
		AgentID:         c.cfg.AgentID,
		Name:            rec.Name,
		PartnerName:     rec.PartnerName,
		Number:          o.Number,
		Duration:        calls.FormatDuration(secs),
		DurationSeconds: secs,
		AutoDial:        c.autoCall,
	}
	c.pending = append(c.pending, out)
	c.autoCall = false
	c.publish(EventOutcomeReady, out)
	c.auditCall(ctx, audit.EventTypeCallEnded, o.Target, o.Number, out.Duration)
}

func (c *Controller) directoryFailed(op, id string, err error) {
	c.log.Warn("directory call failed", "op", op, "id", id, "err", err)
	c.notice("Directory error", err.Error())
}
