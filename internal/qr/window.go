// Package qr implements the presence token protocol: epoch-aligned time
// windows, the token wire format and stateless token validation. Everything
// here is pure and safe for concurrent use; storage and replay protection
// live in the ledger packages.
package qr

import "time"

const (
	// WindowSize is the length of one token window.
	WindowSize = 60 * time.Second

	// SkewTolerance absorbs device clock skew at both window edges.
	SkewTolerance = 2 * time.Second
)

// Window is an epoch-aligned interval. Start and End are unix milliseconds.
type Window struct {
	ID    int64
	Start int64
	End   int64
}

// WindowAt returns the window containing nowMs (unix milliseconds).
func WindowAt(nowMs int64) Window {
	size := WindowSize.Milliseconds()
	id := nowMs / size
	if nowMs < 0 && nowMs%size != 0 {
		id--
	}
	start := id * size
	return Window{ID: id, Start: start, End: start + size}
}

// WindowAtTime is WindowAt for a time.Time.
func WindowAtTime(now time.Time) Window {
	return WindowAt(now.UnixMilli())
}

// Within reports whether start-tol <= ts <= end+tol.
func Within(ts, start, end, tol int64) bool {
	return start-tol <= ts && ts <= end+tol
}

// Contains reports whether tsMs falls inside w widened by SkewTolerance.
func (w Window) Contains(tsMs int64) bool {
	return Within(tsMs, w.Start, w.End, SkewTolerance.Milliseconds())
}
