package kv

import "context"

// Store is a handle to a revisioned key-value backend.
//
// Implementations: natskv (JetStream KV over a broker), litekv (embedded
// SQLite), kvtest (scripted fake for tests). All implementations must be
// safe for concurrent use.
type Store interface {
	// Bucket opens an existing bucket.
	// Returns ErrBucketNotFound if the bucket does not exist.
	Bucket(ctx context.Context, name string) (Bucket, error)

	// CreateBucket opens a bucket, creating it with the given description
	// if it does not exist. Idempotent.
	CreateBucket(ctx context.Context, name, description string) (Bucket, error)

	// Close releases the connection and all watchers derived from it.
	Close() error
}

// Bucket is a named key-value namespace.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// Get returns the live entry for a key.
	// Returns ErrKeyNotFound if the key is absent or deleted.
	Get(ctx context.Context, key string) (Entry, error)

	// Put writes a value and returns the revision assigned to the write.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Delete writes a delete tombstone and returns its revision.
	Delete(ctx context.Context, key string) (uint64, error)

	// List enumerates the live entries whose keys match the filter
	// (see the match package for filter semantics). Order is unspecified.
	List(ctx context.Context, filter string) ([]Entry, error)

	// Watch opens a stream of change events for keys matching the filter.
	// Only changes made after the call are delivered; the stream ends when
	// ctx is cancelled or the watcher is stopped.
	Watch(ctx context.Context, filter string) (Watcher, error)

	// History returns every retained revision of one key in ascending
	// revision order, tombstones included.
	History(ctx context.Context, key string) ([]Entry, error)
}

// Watcher is a live stream of change events.
type Watcher interface {
	// Updates returns the event channel. The channel is closed when the
	// watcher stops, whether by Stop, context cancellation, or a
	// transport fault.
	Updates() <-chan Entry

	// Stop tears the stream down. Idempotent.
	Stop() error
}

// ConnStatus is a transport connectivity transition.
type ConnStatus int

const (
	// StatusDisconnected signals the transport lost its connection.
	StatusDisconnected ConnStatus = iota
	// StatusConnected signals the transport established or re-established
	// its connection.
	StatusConnected
)

// String returns the status name for logging.
func (s ConnStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// StatusSource is implemented by stores that can report connectivity
// transitions, feeding the reconnection coordinator. Stores without a
// network leg (litekv) do not implement it.
type StatusSource interface {
	// Status returns a channel of connectivity transitions. The initial
	// connected state is delivered as the first event.
	Status() <-chan ConnStatus
}
