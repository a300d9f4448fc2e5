package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/midideck/midideck-go/internal/models"
)

// applyBudget bounds the total time spent on one intent, including the
// backend retry budget.
const applyBudget = 30 * time.Second

// Run owns the intent queue: it consumes queued intents one at a time and
// runs the periodic resync, until ctx is cancelled. On shutdown the queue
// is drained without waiting on further retries.
//
// Run must be called after Bootstrap so intents never target a sink that
// does not exist on the backend yet.
func (c *Controller) Run(ctx context.Context, resyncEvery time.Duration) {
	ticker := time.NewTicker(resyncEvery)
	defer ticker.Stop()

	for {
		select {
		case intent := <-c.intents:
			c.consume(intent)
		case <-ticker.C:
			if err := c.Resync(ctx); err != nil {
				slog.Warn("controller: resync failed", "err", err)
			}
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Controller) consume(intent models.Intent) {
	ctx, cancel := context.WithTimeout(context.Background(), applyBudget)
	defer cancel()
	if _, err := c.ApplyIntent(ctx, intent); err != nil {
		slog.Warn("controller: intent rejected", "intent", intent.String(), "err", err.Message)
	}
}

// drain applies whatever is left in the queue, with a short per-command
// budget so shutdown is not held up by a misbehaving backend.
func (c *Controller) drain() {
	for {
		select {
		case intent := <-c.intents:
			ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
			if _, err := c.ApplyIntent(ctx, intent); err != nil {
				slog.Warn("controller: intent rejected during drain", "intent", intent.String(), "err", err.Message)
			}
			cancel()
		default:
			return
		}
	}
}
