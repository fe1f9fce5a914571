// Package maintenance runs the server's periodic jobs.
package maintenance

import (
	"context"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/logging"
)

// SystemActor is recorded as the actor of scheduled rotations.
const SystemActor = "system"

type Rotator interface {
	RotateExpiring(ctx context.Context, within time.Duration, actor string) ([]string, error)
}

type BacklogReporter interface {
	Backlog(ctx context.Context, age time.Duration) (int64, *time.Time, error)
}

// RunRotationLoop rotates secrets expiring within lead, once at start and
// then every interval, until ctx is done.
func RunRotationLoop(ctx context.Context, r Rotator, interval, lead time.Duration, log logging.Logger) error {
	rotate := func() {
		rotated, err := r.RotateExpiring(ctx, lead, SystemActor)
		if err != nil {
			log.Error(ctx, "scheduled rotation incomplete", "rotated", len(rotated), "error", err)
			return
		}
		if len(rotated) > 0 {
			log.Info(ctx, "scheduled rotation", "rotated", len(rotated))
		}
	}

	rotate()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rotate()
		}
	}
}

// RunBacklogMonitor warns every interval while entries older than age are
// still pending. It only reports.
func RunBacklogMonitor(ctx context.Context, b BacklogReporter, interval, age time.Duration, log logging.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			count, oldest, err := b.Backlog(ctx, age)
			if err != nil {
				log.Error(ctx, "failed to check ledger backlog", "error", err)
				continue
			}
			if count > 0 && oldest != nil {
				log.Warn(ctx, "stale pending scan entries", "count", count, "oldest_age", time.Since(*oldest).Round(time.Second))
			}
		}
	}
}
