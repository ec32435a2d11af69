package chat

import (
	"context"
	"time"

	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/models"
)

// Backup stores the in-flight transcript. *signaling.Client implements it.
type Backup interface {
	Heartbeat(ctx context.Context, roomID string, messages []models.ChatMessage) error
}

// Heartbeat backs up c's message log every interval until ctx is done.
// Failures are logged and retried on the next tick.
func Heartbeat(ctx context.Context, b Backup, roomID string, c *Channel, clk clock.Clock, interval time.Duration) {
	if clk == nil {
		clk = clock.Real()
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := b.Heartbeat(ctx, roomID, c.Messages()); err != nil && ctx.Err() == nil {
			logging.Warn("Transcript backup for room %s failed: %v", roomID, err)
		}
	}
}
