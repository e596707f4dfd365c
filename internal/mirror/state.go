package mirror

// State is the mirror lifecycle state.
//
// Transitions:
//
//	UNINITIALIZED -> LOADING                 Init
//	LOADING       -> READY                   snapshot applied, watcher running
//	LOADING       -> BUCKET_MISSING          bucket absent (not an error)
//	LOADING       -> ERROR                   snapshot or watch setup failed
//	BUCKET_MISSING -> LOADING                CreateBucket
//	READY         -> READY                   connectivity loss (stale data kept)
//	any           -> LOADING                 forced Init (reconnect, retry)
type State int

const (
	// StateUninitialized is the state before the first Init, and after
	// CreateBucket until the caller re-invokes Init.
	StateUninitialized State = iota
	// StateLoading means a snapshot read is in progress.
	StateLoading
	// StateReady means the snapshot is applied and the watcher is running
	// (or was stopped by a disconnect; entries stay readable either way).
	StateReady
	// StateBucketMissing means the bucket does not exist.
	StateBucketMissing
	// StateError means snapshot or watch setup failed; see Err.
	StateError
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StateBucketMissing:
		return "BUCKET_MISSING"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}
