package mirror

import "sync/atomic"

// epoch is a monotonic generation counter.
//
// Every Init bumps the epoch, and every asynchronous operation captures the
// epoch current at the time it was issued. A completion is applied only if
// its captured epoch still matches — this is what makes re-init and
// reconfiguration safe against stale completions from a superseded
// generation.
//
// Thread-safety: atomic operations; safe for concurrent use.
type epoch struct {
	n atomic.Int64
}

// bump advances to the next generation and returns it.
// Calls are linearizable - each call returns a unique, increasing value.
func (e *epoch) bump() int64 {
	return e.n.Add(1)
}

// current returns the active generation without advancing.
func (e *epoch) current() int64 {
	return e.n.Load()
}
