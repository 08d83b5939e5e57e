package session

import (
	"context"

	"github.com/localnerve/eagleview/internal/metrics"
	"go.uber.org/zap"
)

// persist queues a background write. Writes run in order on one worker.
func (c *Core) persist(op string, fn func(context.Context) error) {
	c.pendingMu.Lock()
	if c.pendingN == 0 {
		c.pendingIdle = make(chan struct{})
	}
	c.pendingN++
	c.pendingMu.Unlock()

	select {
	case c.persistQ <- persistCmd{op: op, fn: fn}:
	case <-c.closing:
		c.log.Warn("session closed, write dropped", zap.String("operation", op))
		c.persistDone()
	}
}

func (c *Core) persistLoop() {
	defer c.loops.Done()
	for {
		select {
		case cmd := <-c.persistQ:
			c.runPersist(cmd)
		case <-c.closing:
			for {
				select {
				case cmd := <-c.persistQ:
					c.runPersist(cmd)
				default:
					return
				}
			}
		}
	}
}

func (c *Core) runPersist(cmd persistCmd) {
	defer c.persistDone()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := cmd.fn(ctx); err != nil {
		metrics.PersistFailures.WithLabelValues(cmd.op).Inc()
		c.log.Warn("background write failed", zap.String("operation", cmd.op), zap.Error(err))

		c.mu.Lock()
		switch cmd.op {
		case "insert_history":
			c.banner = BannerHistoryNotSaved
		default:
			c.banner = BannerPreferencesNotSaved
		}
		c.mu.Unlock()
	}
}

func (c *Core) persistDone() {
	c.pendingMu.Lock()
	c.pendingN--
	if c.pendingN == 0 {
		close(c.pendingIdle)
	}
	c.pendingMu.Unlock()
}

// Sync waits until every queued write has finished
func (c *Core) Sync(ctx context.Context) error {
	c.pendingMu.Lock()
	idle := c.pendingIdle
	c.pendingMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
