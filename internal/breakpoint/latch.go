// Package breakpoint aggregates load-run outcomes and latches the first
// iteration at which each failure category appeared.
package breakpoint

import "sync/atomic"

// Latch is a write-once cell holding the first iteration index at which a
// condition was observed. Iterations are 1-based; zero means unset.
type Latch struct {
	v atomic.Int64
}

// Set records iteration if the latch is unset. It reports whether this call
// was the one that set it. Non-positive iterations are ignored.
func (l *Latch) Set(iteration int64) bool {
	if iteration < 1 {
		return false
	}
	return l.v.CompareAndSwap(0, iteration)
}

// Get returns the latched iteration and whether the latch is set.
func (l *Latch) Get() (int64, bool) {
	v := l.v.Load()
	return v, v != 0
}
