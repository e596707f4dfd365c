package litekv

import (
	"context"
	"sync"

	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/match"
)

var _ kv.Watcher = (*watcher)(nil)

// hub fans committed writes out to watchers, per bucket.
//
// Delivery is in commit order and non-blocking: a watcher whose buffer is
// full misses the event, which the consuming mirror tolerates because a
// forced re-init always reconciles from a snapshot.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]*watcher // bucket -> id -> watcher
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]*watcher)}
}

func (h *hub) subscribe(ctx context.Context, bucket, filter string) *watcher {
	h.mu.Lock()
	id := h.next
	h.next++
	w := &watcher{
		hub:    h,
		bucket: bucket,
		id:     id,
		filter: filter,
		ch:     make(chan kv.Entry, 256),
	}
	if h.subs[bucket] == nil {
		h.subs[bucket] = make(map[int]*watcher)
	}
	h.subs[bucket][id] = w
	h.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			w.Stop()
		}()
	}
	return w
}

func (h *hub) publish(bucket string, e kv.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.subs[bucket] {
		w.send(e)
	}
}

func (h *hub) unsubscribe(bucket string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[bucket], id)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	var all []*watcher
	for _, byID := range h.subs {
		for _, w := range byID {
			all = append(all, w)
		}
	}
	h.subs = make(map[string]map[int]*watcher)
	h.mu.Unlock()

	for _, w := range all {
		w.close()
	}
}

type watcher struct {
	hub    *hub
	bucket string
	id     int
	filter string

	mu     sync.Mutex
	ch     chan kv.Entry
	closed bool
}

// Updates implements kv.Watcher.
func (w *watcher) Updates() <-chan kv.Entry { return w.ch }

// Stop implements kv.Watcher. Idempotent.
func (w *watcher) Stop() error {
	w.hub.unsubscribe(w.bucket, w.id)
	w.close()
	return nil
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

func (w *watcher) send(e kv.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !match.Match(w.filter, e.Key) {
		return
	}
	select {
	case w.ch <- e:
	default:
	}
}
