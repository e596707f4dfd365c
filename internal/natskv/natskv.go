// Package natskv maps the kv backend contract onto NATS JetStream
// Key/Value buckets.
//
// The adapter is deliberately thin: revisions, history and watch
// semantics come from JetStream as-is, and the package only translates
// entry shapes, operation codes and filter defaults. Connectivity
// transitions from the NATS client surface through Status for the
// reconnection coordinator.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/match"
)

var (
	_ kv.Store        = (*Store)(nil)
	_ kv.StatusSource = (*Store)(nil)
)

// DefaultHistory is the per-key history depth requested for created
// buckets. JetStream caps history at 64.
const DefaultHistory = 10

// Store is a kv.Store over one NATS connection.
type Store struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	status chan kv.ConnStatus
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Connect dials the broker and returns a connected store.
//
// The returned store reports connectivity transitions on Status; the
// initial connected state is the first event delivered.
func Connect(url string, opts ...Option) (*Store, error) {
	s := &Store{
		status: make(chan kv.ConnStatus, 16),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("nats disconnected", "error", err)
			s.pushStatus(kv.StatusDisconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			s.pushStatus(kv.StatusConnected)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	s.nc = nc
	s.js = js
	s.pushStatus(kv.StatusConnected)
	return s, nil
}

// Status implements kv.StatusSource.
func (s *Store) Status() <-chan kv.ConnStatus {
	return s.status
}

// pushStatus delivers a transition without ever blocking the NATS
// callback goroutine; if the coordinator is behind, older transitions
// are superseded by the newest one anyway.
func (s *Store) pushStatus(st kv.ConnStatus) {
	select {
	case s.status <- st:
	default:
	}
}

// Bucket implements kv.Store.
func (s *Store) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	b, err := s.js.KeyValue(name)
	if errors.Is(err, nats.ErrBucketNotFound) {
		return nil, kv.ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bucket %q: %w", name, err)
	}
	return &Bucket{kv: b, name: name}, nil
}

// CreateBucket implements kv.Store. Idempotent.
func (s *Store) CreateBucket(ctx context.Context, name, description string) (kv.Bucket, error) {
	if b, err := s.js.KeyValue(name); err == nil {
		return &Bucket{kv: b, name: name}, nil
	}
	b, err := s.js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      name,
		Description: description,
		History:     DefaultHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return &Bucket{kv: b, name: name}, nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// Bucket is a kv.Bucket over one JetStream KV bucket.
type Bucket struct {
	kv   nats.KeyValue
	name string
}

var _ kv.Bucket = (*Bucket)(nil)

// Name implements kv.Bucket.
func (b *Bucket) Name() string { return b.name }

// Get implements kv.Bucket.
func (b *Bucket) Get(ctx context.Context, key string) (kv.Entry, error) {
	e, err := b.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	if err != nil {
		return kv.Entry{}, fmt.Errorf("get %q: %w", key, err)
	}
	return fromKVEntry(e), nil
}

// Put implements kv.Bucket.
func (b *Bucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Put(key, value)
	if err != nil {
		return 0, fmt.Errorf("put %q: %w", key, err)
	}
	return rev, nil
}

// Delete implements kv.Bucket.
//
// The broker call does not return the tombstone revision, so it is read
// back from the key's history; a failed read-back yields revision 0
// alongside a nil error, since the delete itself succeeded.
func (b *Bucket) Delete(ctx context.Context, key string) (uint64, error) {
	if err := b.kv.Delete(key); err != nil {
		return 0, fmt.Errorf("delete %q: %w", key, err)
	}
	history, err := b.kv.History(key, nats.Context(ctx))
	if err != nil || len(history) == 0 {
		return 0, nil
	}
	return history[len(history)-1].Revision(), nil
}

// List implements kv.Bucket. The snapshot is taken by draining a watch
// of current values (the JetStream idiom for filtered enumeration).
func (b *Bucket) List(ctx context.Context, filter string) ([]kv.Entry, error) {
	w, err := b.kv.Watch(normalizeFilter(filter), nats.IgnoreDeletes(), nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("list watch: %w", err)
	}
	defer w.Stop()

	var out []kv.Entry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case e, ok := <-w.Updates():
			if !ok {
				return out, nil
			}
			if e == nil {
				// nil marker: initial values are complete.
				return out, nil
			}
			out = append(out, fromKVEntry(e))
		}
	}
}

// Watch implements kv.Bucket. Only updates after the call are delivered.
func (b *Bucket) Watch(ctx context.Context, filter string) (kv.Watcher, error) {
	w, err := b.kv.Watch(normalizeFilter(filter), nats.UpdatesOnly(), nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	a := newWatchAdapter(w)
	go a.run()
	return a, nil
}

// History implements kv.Bucket.
func (b *Bucket) History(ctx context.Context, key string) ([]kv.Entry, error) {
	entries, err := b.kv.History(key, nats.Context(ctx))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", key, err)
	}
	out := make([]kv.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromKVEntry(e))
	}
	return out, nil
}

// normalizeFilter maps the empty filter onto the match-all subject.
func normalizeFilter(filter string) string {
	if filter == "" {
		return match.MatchAll
	}
	return filter
}

// fromKVEntry translates one JetStream entry.
func fromKVEntry(e nats.KeyValueEntry) kv.Entry {
	raw := e.Value()
	return kv.Entry{
		Key:       e.Key(),
		Raw:       raw,
		Value:     kv.Decode(raw),
		Revision:  e.Revision(),
		Operation: fromKVOperation(e.Operation()),
		Created:   e.Created(),
	}
}

// fromKVOperation translates the operation code.
func fromKVOperation(op nats.KeyValueOp) kv.Operation {
	switch op {
	case nats.KeyValuePut:
		return kv.OpPut
	case nats.KeyValueDelete:
		return kv.OpDelete
	case nats.KeyValuePurge:
		return kv.OpPurge
	}
	return kv.Operation(op.String())
}
