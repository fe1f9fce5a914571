// Package limiter provides keyed counters used to throttle clients and
// verifying devices.
package limiter

import (
	"context"
	"time"
)

// Decision is the result of a limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter counts events per key.
//
// Check records one event for key and reports whether it fit the budget.
// Blocked reports whether key is currently over budget without recording
// anything.
type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)
	Blocked(ctx context.Context, key string) (Decision, error)
}
