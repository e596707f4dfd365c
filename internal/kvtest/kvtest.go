// Package kvtest provides a scripted in-memory kv backend for unit tests.
//
// The fake keeps full per-bucket history, echoes every write to open
// watchers (so write-visibility round trips behave like a real backend),
// and exposes knobs the tests need: error injection per operation,
// raw event injection for replay/stale scenarios, and watcher kills to
// simulate a transport fault.
package kvtest

import (
	"context"
	"sync"
	"time"

	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/match"
)

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Bucket  = (*Bucket)(nil)
	_ kv.Watcher = (*Watcher)(nil)
)

// Store is a fake kv.Store.
type Store struct {
	mu      sync.Mutex
	buckets map[string]*Bucket

	// BucketErr, when set, is returned by Bucket and CreateBucket.
	BucketErr error
}

// NewStore creates an empty fake store.
func NewStore() *Store {
	return &Store{buckets: make(map[string]*Bucket)}
}

// AddBucket creates a bucket directly, for test seeding.
func (s *Store) AddBucket(name string) *Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		b = newBucket(name)
		s.buckets[name] = b
	}
	return b
}

// Bucket implements kv.Store.
func (s *Store) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BucketErr != nil {
		return nil, s.BucketErr
	}
	b, ok := s.buckets[name]
	if !ok {
		return nil, kv.ErrBucketNotFound
	}
	return b, nil
}

// CreateBucket implements kv.Store.
func (s *Store) CreateBucket(ctx context.Context, name, description string) (kv.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BucketErr != nil {
		return nil, s.BucketErr
	}
	b, ok := s.buckets[name]
	if !ok {
		b = newBucket(name)
		b.description = description
		s.buckets[name] = b
	}
	return b, nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buckets {
		b.KillWatchers()
	}
	return nil
}

// Bucket is a fake kv.Bucket with full history retention.
type Bucket struct {
	mu          sync.Mutex
	name        string
	description string
	rev         uint64
	rows        []kv.Entry
	watchers    []*Watcher

	// Error injection, one knob per operation.
	GetErr     error
	PutErr     error
	DeleteErr  error
	ListErr    error
	WatchErr   error
	HistoryErr error

	// NoServerFilter, when true, makes watchers deliver every event
	// regardless of their filter, modeling a backend that does not
	// filter server-side.
	NoServerFilter bool
}

func newBucket(name string) *Bucket {
	return &Bucket{name: name}
}

// Name implements kv.Bucket.
func (b *Bucket) Name() string { return b.name }

// Get implements kv.Bucket.
func (b *Bucket) Get(ctx context.Context, key string) (kv.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GetErr != nil {
		return kv.Entry{}, b.GetErr
	}
	for i := len(b.rows) - 1; i >= 0; i-- {
		if b.rows[i].Key == key {
			if !b.rows[i].Live() {
				return kv.Entry{}, kv.ErrKeyNotFound
			}
			return b.rows[i], nil
		}
	}
	return kv.Entry{}, kv.ErrKeyNotFound
}

// Put implements kv.Bucket. The write is echoed to open watchers.
func (b *Bucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PutErr != nil {
		return 0, b.PutErr
	}
	return b.appendLocked(key, value, kv.OpPut), nil
}

// Delete implements kv.Bucket.
func (b *Bucket) Delete(ctx context.Context, key string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeleteErr != nil {
		return 0, b.DeleteErr
	}
	return b.appendLocked(key, nil, kv.OpDelete), nil
}

// Purge removes a key's history and appends a purge marker.
func (b *Bucket) Purge(key string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.rows[:0]
	for _, row := range b.rows {
		if row.Key != key {
			kept = append(kept, row)
		}
	}
	b.rows = kept
	return b.appendLocked(key, nil, kv.OpPurge)
}

// List implements kv.Bucket.
func (b *Bucket) List(ctx context.Context, filter string) ([]kv.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	latest := make(map[string]kv.Entry)
	for _, row := range b.rows {
		latest[row.Key] = row
	}
	var out []kv.Entry
	for key, row := range latest {
		if row.Live() && match.Match(filter, key) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Watch implements kv.Bucket. Only changes after the call are delivered.
func (b *Bucket) Watch(ctx context.Context, filter string) (kv.Watcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WatchErr != nil {
		return nil, b.WatchErr
	}
	w := &Watcher{
		bucket:   b,
		filter:   filter,
		unfilter: b.NoServerFilter,
		ch:       make(chan kv.Entry, 256),
	}
	b.watchers = append(b.watchers, w)
	return w, nil
}

// History implements kv.Bucket.
func (b *Bucket) History(ctx context.Context, key string) ([]kv.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HistoryErr != nil {
		return nil, b.HistoryErr
	}
	var out []kv.Entry
	for _, row := range b.rows {
		if row.Key == key {
			out = append(out, row)
		}
	}
	return out, nil
}

// Emit injects a raw event into open watchers without touching history.
// Used to script replays, stale revisions and out-of-filter events.
func (b *Bucket) Emit(e kv.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fanOutLocked(e)
}

// KillWatchers closes every open watch channel without a context cancel,
// simulating a transport fault under the mirror.
func (b *Bucket) KillWatchers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.watchers {
		w.kill()
	}
	b.watchers = nil
}

// Revision returns the bucket's current revision counter.
func (b *Bucket) Revision() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rev
}

func (b *Bucket) appendLocked(key string, value []byte, op kv.Operation) uint64 {
	b.rev++
	e := kv.Entry{
		Key:       key,
		Raw:       value,
		Value:     kv.Decode(value),
		Revision:  b.rev,
		Operation: op,
		Created:   time.Now(),
	}
	b.rows = append(b.rows, e)
	b.fanOutLocked(e)
	return b.rev
}

func (b *Bucket) fanOutLocked(e kv.Entry) {
	for _, w := range b.watchers {
		w.send(e)
	}
}

// Watcher is a fake kv.Watcher.
type Watcher struct {
	bucket   *Bucket
	filter   string
	unfilter bool

	mu     sync.Mutex
	ch     chan kv.Entry
	closed bool
}

// Updates implements kv.Watcher.
func (w *Watcher) Updates() <-chan kv.Entry { return w.ch }

// Stop implements kv.Watcher. Idempotent.
func (w *Watcher) Stop() error {
	w.kill()
	return nil
}

func (w *Watcher) kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

func (w *Watcher) send(e kv.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if !w.unfilter && !match.Match(w.filter, e.Key) {
		return
	}
	select {
	case w.ch <- e:
	default:
	}
}
