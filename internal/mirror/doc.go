// Package mirror implements the live key-value mirror behind the
// dashboard widgets.
//
// A Mirror owns the synchronized map for one (bucket, filter) pair: Init
// seeds it from a snapshot, then a single watch goroutine merges change
// events under monotonic-revision semantics. The rest of the package is
// the machinery that keeps that safe on an unreliable stream:
//
// Epoch guard:
// Every Init bumps a generation counter, and every asynchronous
// completion carries the generation active when it was issued. Stale
// completions — a racing re-init, a replayed revision — are dropped
// silently. The map never regresses to an older revision.
//
// Single watcher:
// Exactly one watch goroutine runs per mirror. Starting a new one waits
// for the prior one to fully exit, so two goroutines can never interleave
// writes into the same map (a race that shows up as flicker or ghost
// entries in the UI).
//
// Write visibility:
// Put and Delete never touch the map directly. Their effect arrives only
// via the watch echo, trading a round-trip of UI latency for the
// guarantee that a rejected write leaves no divergent local state.
//
// Reconnection:
// The Coordinator stops the watcher on disconnect (keeping stale entries
// readable) and forces a fresh snapshot-plus-watch cycle on reconnect.
// Ordering across a gap is never reconstructed; the snapshot replaces
// the map wholesale.
package mirror
