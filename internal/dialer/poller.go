package dialer

import (
	"context"
	"time"
)

// Poll refreshes the queue silently every interval until ctx is done.
// Done records stay visible; only an explicit refresh clears them.
func (c *Controller) Poll(ctx context.Context, every time.Duration) {
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
			if err := c.RefreshQueue(ctx, false); err != nil {
				c.log.Warn("queue poll failed", "err", err)
			}
		}
	}
}
