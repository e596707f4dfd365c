package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/match"
)

// Mirror keeps a local map of entries synchronized with one
// (bucket, filter) pair of a remote revisioned key-value store.
//
// Init loads a snapshot, then opens exactly one watch stream and merges
// its events into the map under monotonic-revision semantics: for a given
// key, the map always holds the highest revision observed during the
// current epoch, and a key is present iff its last applied operation was
// a put.
//
// Thread-safety model:
//   - entries and the scalar state fields have a single writer family
//     (Init and the watch goroutine of the current epoch) and arbitrarily
//     many readers through the snapshot accessors
//   - Init, Stop and CreateBucket serialize on an internal mutex; a new
//     watch goroutine is started only after the prior one has fully exited
//   - Put, Delete, GetHistory and Restore are safe from any goroutine and
//     never mutate entries; writes become visible only through their
//     watch echo
type Mirror struct {
	store      kv.Store
	bucketName string
	filter     string
	logger     *slog.Logger

	epoch epoch

	// lifecycle serializes Init/Stop/CreateBucket and the watcher handoff.
	// All epoch bumps happen while it is held.
	lifecycle   sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	mu      sync.RWMutex
	entries map[string]kv.Entry
	bucket  kv.Bucket
	state   State
	loading bool
	exists  bool
	lastErr error

	subs *registry
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// New creates a mirror for one (bucket, filter) pair.
//
// An empty filter mirrors the whole bucket. The mirror does nothing until
// Init is called.
func New(store kv.Store, bucket, filter string, opts ...Option) (*Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("empty bucket name")
	}
	if !match.Valid(filter) {
		return nil, fmt.Errorf("invalid filter %q", filter)
	}

	m := &Mirror{
		store:      store,
		bucketName: bucket,
		filter:     filter,
		logger:     slog.Default(),
		entries:    make(map[string]kv.Entry),
		state:      StateUninitialized,
		subs:       newRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("bucket", bucket, "filter", filter)
	return m, nil
}

// Init loads a snapshot and starts the watch stream.
//
// Init bumps the epoch, which makes every in-flight completion from the
// previous generation inert, and waits for the previous watch goroutine
// to exit before starting a new one. It returns once the snapshot is
// applied; the watcher runs until Stop or the next Init.
//
// A missing bucket is not an error: Init returns nil with Exists()=false
// and the state set to BUCKET_MISSING.
func (m *Mirror) Init(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.stopWatchLocked()
	epoch := m.epoch.bump()

	m.setLoading()

	bucket, err := m.store.Bucket(ctx, m.bucketName)
	if errors.Is(err, kv.ErrBucketNotFound) {
		m.setBucketMissing(epoch)
		return nil
	}
	if err != nil {
		ferr := newTransportError(m.bucketName, "", "bucket lookup failed", err)
		m.setFailed(epoch, ferr)
		return ferr
	}

	snapshot, err := bucket.List(ctx, m.filter)
	if err != nil {
		ferr := newTransportError(m.bucketName, "", "snapshot read failed", err)
		m.setFailed(epoch, ferr)
		return ferr
	}

	fresh := make(map[string]kv.Entry, len(snapshot))
	for _, e := range snapshot {
		key := kv.CanonicalKey(e.Key)
		if !e.Live() || !match.Match(m.filter, key) {
			continue
		}
		e.Key = key
		if cur, ok := fresh[key]; ok && e.Revision <= cur.Revision {
			continue
		}
		fresh[key] = e
	}

	// The watcher outlives this call; it gets its own context.
	wctx, cancel := context.WithCancel(context.Background())
	watcher, err := bucket.Watch(wctx, m.filter)
	if err != nil {
		cancel()
		ferr := newTransportError(m.bucketName, "", "watch setup failed", err)
		m.setFailed(epoch, ferr)
		return ferr
	}

	m.mu.Lock()
	if m.epoch.current() != epoch {
		// Superseded while loading; discard everything we set up.
		m.mu.Unlock()
		cancel()
		watcher.Stop()
		return nil
	}
	m.entries = fresh
	m.bucket = bucket
	m.state = StateReady
	m.exists = true
	m.loading = false
	m.lastErr = nil
	m.mu.Unlock()
	m.subs.notify(Change{Kind: ChangeReset, State: StateReady})

	done := make(chan struct{})
	m.watchCancel = cancel
	m.watchDone = done

	watchID := uuid.Must(uuid.NewV7()).String()
	m.logger.Debug("watch started", "epoch", epoch, "watch_id", watchID, "snapshot_keys", len(fresh))
	go m.consume(wctx, epoch, watcher, done, watchID)

	return nil
}

// CreateBucket opens-or-creates the bucket.
//
// On success the bucket exists and writes are possible, but the watcher is
// left uninitialized; callers must invoke Init again to begin observing.
func (m *Mirror) CreateBucket(ctx context.Context, description string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	epoch := m.epoch.current()
	m.setLoading()

	bucket, err := m.store.CreateBucket(ctx, m.bucketName, description)
	if err != nil {
		ferr := newTransportError(m.bucketName, "", "bucket create failed", err)
		m.setFailed(epoch, ferr)
		return ferr
	}

	m.mu.Lock()
	m.bucket = bucket
	m.exists = true
	m.loading = false
	m.state = StateUninitialized
	m.lastErr = nil
	m.mu.Unlock()
	m.subs.notify(Change{Kind: ChangeState, State: StateUninitialized})
	return nil
}

// Put validates and writes a value, returning the assigned revision.
//
// Values are encoded per the kv package rules: strings verbatim, anything
// else as JSON. The local map is NOT updated optimistically — the write
// becomes visible only when its echo arrives on the watch stream, so a
// rejected write never leaves a divergent local state behind.
func (m *Mirror) Put(ctx context.Context, key string, value any) (uint64, error) {
	key = kv.CanonicalKey(key)
	if err := kv.ValidateKey(key); err != nil {
		return 0, newValidationError(m.bucketName, key, err)
	}
	data, err := kv.Encode(value)
	if err != nil {
		return 0, newValidationError(m.bucketName, key, err)
	}

	bucket := m.currentBucket()
	if bucket == nil {
		return 0, newNotFoundError(m.bucketName)
	}
	rev, err := bucket.Put(ctx, key, data)
	if err != nil {
		return 0, newTransportError(m.bucketName, key, "put failed", err)
	}
	return rev, nil
}

// Delete writes a delete tombstone for a key.
// Like Put, the entry is removed from the map only via the watch echo.
func (m *Mirror) Delete(ctx context.Context, key string) (uint64, error) {
	key = kv.CanonicalKey(key)
	if err := kv.ValidateKey(key); err != nil {
		return 0, newValidationError(m.bucketName, key, err)
	}

	bucket := m.currentBucket()
	if bucket == nil {
		return 0, newNotFoundError(m.bucketName)
	}
	rev, err := bucket.Delete(ctx, key)
	if err != nil {
		return 0, newTransportError(m.bucketName, key, "delete failed", err)
	}
	return rev, nil
}

// GetHistory returns every retained revision of one key in ascending
// revision order. It is independent of the live map and never mutates it.
func (m *Mirror) GetHistory(ctx context.Context, key string) ([]kv.Entry, error) {
	f := &Fetcher{Store: m.store, Logger: m.logger}
	return f.Fetch(ctx, m.bucketName, key)
}

// Restore writes a historical value back as a new put.
//
// History is append-only: restoring creates a new top-of-chain revision
// rather than rewriting or branching the chain. The referenced revision
// must be a put.
func (m *Mirror) Restore(ctx context.Context, key string, revision uint64) (uint64, error) {
	history, err := m.GetHistory(ctx, key)
	if err != nil {
		return 0, err
	}
	for _, e := range history {
		if e.Revision != revision {
			continue
		}
		if !e.Live() {
			return 0, newValidationError(m.bucketName, key,
				fmt.Errorf("revision %d is a %s, not a value", revision, e.Operation))
		}
		bucket := m.currentBucket()
		if bucket == nil {
			return 0, newNotFoundError(m.bucketName)
		}
		rev, err := bucket.Put(ctx, kv.CanonicalKey(key), e.Raw)
		if err != nil {
			return 0, newTransportError(m.bucketName, key, "restore put failed", err)
		}
		return rev, nil
	}
	return 0, newValidationError(m.bucketName, key,
		fmt.Errorf("revision %d not found in history", revision))
}

// Stop cancels the active watch stream and bumps the epoch, making any
// in-flight completion from the stopped generation inert.
//
// Stop is idempotent and callable from any state. It does NOT clear
// entries or the error field: after a connectivity loss the stale map
// stays readable until the next Init replaces it.
func (m *Mirror) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.epoch.bump()
	m.stopWatchLocked()
}

// Subscribe registers a change feed with the given buffer size.
//
// Delivery is best-effort: a subscriber that falls behind misses
// notifications and should reconcile from Entries. The returned cancel
// func closes the channel.
func (m *Mirror) Subscribe(buffer int) (<-chan Change, func()) {
	return m.subs.subscribe(buffer)
}

// Entries returns a copy of the live map.
func (m *Mirror) Entries() map[string]kv.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]kv.Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Get returns the live entry for a key, if present.
func (m *Mirror) Get(key string) (kv.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[kv.CanonicalKey(key)]
	return e, ok
}

// Len returns the number of live entries.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// State returns the lifecycle state.
func (m *Mirror) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Loading reports whether a snapshot read is in progress.
func (m *Mirror) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Exists reports whether the bucket exists, as of the last Init or
// CreateBucket.
func (m *Mirror) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exists
}

// Err returns the captured mirror-level failure, if any.
// Failures are captured here rather than thrown across the reactive
// boundary so the UI can render them inline.
func (m *Mirror) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Epoch returns the current generation. Exposed for tests and logging.
func (m *Mirror) Epoch() int64 {
	return m.epoch.current()
}

// BucketName returns the configured bucket name.
func (m *Mirror) BucketName() string { return m.bucketName }

// Filter returns the configured filter.
func (m *Mirror) Filter() string { return m.filter }

// consume is the watch loop: exactly one instance runs per mirror at any
// time, tagged with the epoch that started it.
func (m *Mirror) consume(ctx context.Context, epoch int64, w kv.Watcher, done chan struct{}, watchID string) {
	defer close(done)
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("watch cancelled", "epoch", epoch, "watch_id", watchID)
			return
		case ev, ok := <-w.Updates():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				// Stream died underneath us: fatal for this watcher.
				// The mirror resumes only via an explicit Init.
				ferr := newTransportError(m.bucketName, "", "watch stream terminated", nil)
				m.logger.Warn("watch stream terminated", "epoch", epoch, "watch_id", watchID)
				m.setFailed(epoch, ferr)
				return
			}
			m.applyEvent(epoch, ev)
		}
	}
}

// applyEvent merges one watch event into the map.
//
// Merge rule: events from a superseded epoch are dropped; puts apply only
// when the key is absent or the event revision is higher than the held
// one (anything else is a replay); deletes and purges remove the key
// unconditionally, since a delete is itself a new revision.
func (m *Mirror) applyEvent(epoch int64, ev kv.Entry) {
	if m.epoch.current() != epoch {
		return
	}

	key := kv.CanonicalKey(ev.Key)
	if !match.Match(m.filter, key) {
		// Backend did not filter server-side; drop.
		return
	}
	ev.Key = key

	m.mu.Lock()
	if m.epoch.current() != epoch {
		m.mu.Unlock()
		return
	}

	switch ev.Operation {
	case kv.OpPut:
		if cur, ok := m.entries[key]; ok && ev.Revision <= cur.Revision {
			m.mu.Unlock()
			return
		}
		m.entries[key] = ev
		m.mu.Unlock()
		m.subs.notify(Change{Kind: ChangePut, Entry: ev, State: StateReady})
	case kv.OpDelete, kv.OpPurge:
		_, present := m.entries[key]
		delete(m.entries, key)
		m.mu.Unlock()
		if present {
			m.subs.notify(Change{Kind: ChangeDelete, Entry: ev, State: StateReady})
		}
	default:
		m.mu.Unlock()
		m.logger.Warn("unknown operation in watch event", "operation", string(ev.Operation), "key", key)
	}
}

// currentBucket returns the open bucket handle, or nil.
func (m *Mirror) currentBucket() kv.Bucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bucket
}

// stopWatchLocked cancels the running watch goroutine and waits for it to
// exit. Caller must hold lifecycle. Idempotent.
func (m *Mirror) stopWatchLocked() {
	if m.watchCancel == nil {
		return
	}
	m.watchCancel()
	<-m.watchDone
	m.watchCancel = nil
	m.watchDone = nil
}

func (m *Mirror) setLoading() {
	m.mu.Lock()
	m.state = StateLoading
	m.loading = true
	m.lastErr = nil
	m.mu.Unlock()
	m.subs.notify(Change{Kind: ChangeState, State: StateLoading})
}

func (m *Mirror) setBucketMissing(epoch int64) {
	m.mu.Lock()
	if m.epoch.current() != epoch {
		m.mu.Unlock()
		return
	}
	m.entries = make(map[string]kv.Entry)
	m.bucket = nil
	m.state = StateBucketMissing
	m.exists = false
	m.loading = false
	m.lastErr = nil
	m.mu.Unlock()
	m.subs.notify(Change{Kind: ChangeReset, State: StateBucketMissing})
}

// setFailed captures a failure, guarded by the issuing epoch so a stale
// completion cannot clobber the state of a newer generation.
func (m *Mirror) setFailed(epoch int64, err error) {
	m.mu.Lock()
	if m.epoch.current() != epoch {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	m.loading = false
	m.lastErr = err
	m.mu.Unlock()
	m.subs.notify(Change{Kind: ChangeState, State: StateError})
}
