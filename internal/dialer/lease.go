package dialer

import (
	"context"
	"fmt"
	"time"

	"softphone-dialer/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease guards the agent's single line. Acquire by the current holder
// extends the hold.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLease holds the line across dialer processes sharing one redis.
// Each process owns a random token; the TTL frees the line if a process dies
// mid-call, so a live holder renews it with KeepLease.
type RedisLease struct {
	rdb   *redis.Client
	key   string
	owner string
	ttl   time.Duration
}

func NewRedisLease(rdb *redis.Client, agentID string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLease{rdb: rdb, key: LeaseKey(agentID), owner: uuid.NewString(), ttl: ttl}
}

func LeaseKey(agentID string) string { return "dialer:active:" + agentID }

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireLease(ctx, l.rdb, l.key, l.owner, l.ttl)
}

func (l *RedisLease) Release(ctx context.Context) error {
	return utils.ReleaseLease(ctx, l.rdb, l.key, l.owner)
}

// KeepLease renews the held line every interval until ctx is done.
func (c *Controller) KeepLease(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.renewLease(ctx)
		}
	}
}

func (c *Controller) renewLease(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lease == nil || !c.leased {
		return
	}
	ok, err := c.lease.Acquire(ctx)
	switch {
	case err != nil:
		c.log.Warn("renew line failed", "err", err)
	case !ok:
		c.log.Error("line taken by another dialer during a call", "target", c.session.Target())
		c.notice("Line conflict", "Another dialer took this agent's line during the call.")
	}
}

// acquireLease takes the line for a new session unless it is already held.
func (c *Controller) acquireLease(ctx context.Context) error {
	if c.lease == nil || c.leased {
		return nil
	}
	ok, err := c.lease.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("dialer: acquire line: %w", err)
	}
	if !ok {
		return ErrLineBusy
	}
	c.leased = true
	return nil
}

// lineFree reports whether no call, outbound or inbound, is bound to the line.
func (c *Controller) lineFree() bool {
	return c.session.Target() == "" && !c.session.Info().Inbound
}

func (c *Controller) releaseLease(ctx context.Context) {
	if c.lease == nil || !c.leased {
		return
	}
	c.leased = false
	if err := c.lease.Release(ctx); err != nil {
		c.log.Warn("release line failed", "err", err)
	}
}
