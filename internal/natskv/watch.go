package natskv

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/twinview/twinview/internal/kv"
)

var _ kv.Watcher = (*watchAdapter)(nil)

// watchAdapter pumps a nats.KeyWatcher into a kv.Entry channel.
//
// The nil markers JetStream interleaves with real entries are dropped.
// The adapter's channel closes when the underlying watcher closes or
// Stop is called, which is how the mirror distinguishes a cancelled
// watcher from a dead stream.
type watchAdapter struct {
	w    nats.KeyWatcher
	ch   chan kv.Entry
	done chan struct{}

	once    sync.Once
	stopErr error
}

func newWatchAdapter(w nats.KeyWatcher) *watchAdapter {
	return &watchAdapter{
		w:    w,
		ch:   make(chan kv.Entry, 256),
		done: make(chan struct{}),
	}
}

func (a *watchAdapter) run() {
	defer close(a.ch)
	for e := range a.w.Updates() {
		if e == nil {
			continue
		}
		select {
		case a.ch <- fromKVEntry(e):
		case <-a.done:
			return
		}
	}
}

// Updates implements kv.Watcher.
func (a *watchAdapter) Updates() <-chan kv.Entry { return a.ch }

// Stop implements kv.Watcher. Idempotent.
func (a *watchAdapter) Stop() error {
	a.once.Do(func() {
		close(a.done)
		a.stopErr = a.w.Stop()
	})
	return a.stopErr
}
