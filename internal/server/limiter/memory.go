package limiter

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter is a per-process token bucket per key.
type MemoryLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter allows burst events at once and refills limit events per
// window.
func NewMemoryLimiter(limit int, window time.Duration, burst int) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	if burst < 1 {
		burst = 1
	}
	idle := 5 * time.Minute
	if window > idle {
		idle = window
	}
	return &MemoryLimiter{
		limit:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   burst,
		idle:    idle,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// NewPerMinute creates a limiter for a requests-per-minute budget with a
// burst of a tenth of it.
func NewPerMinute(requestsPerMinute int) *MemoryLimiter {
	return NewMemoryLimiter(requestsPerMinute, time.Minute, requestsPerMinute/10)
}

func (l *MemoryLimiter) Check(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	lim := l.get(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: d}, nil
	}
	return Decision{Allowed: true}, nil
}

func (l *MemoryLimiter) Blocked(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	l.mu.Lock()
	entry, ok := l.clients[key]
	l.mu.Unlock()
	if !ok {
		return Decision{Allowed: true}, nil
	}

	tokens := entry.limiter.TokensAt(now)
	if tokens >= 1 {
		return Decision{Allowed: true}, nil
	}
	missing := 1 - tokens
	wait := time.Duration(math.Ceil(missing / float64(l.limit) * float64(time.Second)))
	return Decision{Allowed: false, RetryAfter: wait}, nil
}

func (l *MemoryLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients[key] = &clientLimiter{limiter: lim, lastSeen: now}
	l.cleanupLocked(now)
	return lim
}

func (l *MemoryLimiter) cleanupLocked(now time.Time) {
	for key, entry := range l.clients {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.clients, key)
		}
	}
}
