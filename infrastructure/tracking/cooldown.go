package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/codecompass/codecompass/domain/indexing"
)

// Ensure Cooldown implements both Reporter and io.Closer.
var (
	_ Reporter  = (*Cooldown)(nil)
	_ io.Closer = (*Cooldown)(nil)
)

// Cooldown wraps a Reporter and limits how frequently updates are
// delivered. Terminal states (completed, failed) are always delivered
// immediately. Non-terminal updates are delivered at most once per the
// configured interval; the latest pending status is flushed when the
// interval elapses, so the inner reporter always converges on the most
// recent snapshot.
type Cooldown struct {
	inner    Reporter
	interval time.Duration

	mu        sync.Mutex
	lastFlush time.Time
	pending   *indexing.Status
	timer     *time.Timer
}

// NewCooldown creates a Cooldown wrapping the given reporter with the
// specified minimum interval between deliveries.
func NewCooldown(inner Reporter, interval time.Duration) *Cooldown {
	return &Cooldown{
		inner:    inner,
		interval: interval,
	}
}

// OnChange receives a status update. Terminal states flush immediately
// and reset the throttle window so the next run's first update passes
// through. Non-terminal states are throttled to one delivery per
// interval.
func (c *Cooldown) OnChange(ctx context.Context, status indexing.Status) error {
	c.mu.Lock()

	if status.State().IsTerminal() {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.pending = nil
		c.lastFlush = time.Time{}
		c.mu.Unlock()
		return c.inner.OnChange(ctx, status)
	}

	elapsed := time.Since(c.lastFlush)
	if c.lastFlush.IsZero() || elapsed >= c.interval {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.pending = nil
		c.lastFlush = time.Now()
		c.mu.Unlock()
		return c.inner.OnChange(ctx, status)
	}

	// Throttled: store as pending, schedule flush if no timer is running.
	statusCopy := status
	c.pending = &statusCopy

	if c.timer == nil {
		remaining := c.interval - elapsed
		c.timer = time.AfterFunc(remaining, c.flushPending)
	}

	c.mu.Unlock()
	return nil
}

// Close flushes the pending status, if any, and stops the timer.
func (c *Cooldown) Close() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		return c.inner.OnChange(context.Background(), *pending)
	}
	return nil
}

func (c *Cooldown) flushPending() {
	c.mu.Lock()
	c.timer = nil
	if c.pending == nil {
		c.mu.Unlock()
		return
	}

	status := *c.pending
	c.pending = nil
	c.lastFlush = time.Now()
	c.mu.Unlock()

	_ = c.inner.OnChange(context.Background(), status)
}
