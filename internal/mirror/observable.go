package mirror

import (
	"sync"

	"github.com/twinview/twinview/internal/kv"
)

// ChangeKind distinguishes the kinds of change notifications.
type ChangeKind int

const (
	// ChangePut signals an entry was created or updated.
	ChangePut ChangeKind = iota + 1
	// ChangeDelete signals an entry was removed.
	ChangeDelete
	// ChangeReset signals the entire entries map was replaced
	// (snapshot applied or cleared). Consumers should re-read Entries.
	ChangeReset
	// ChangeState signals loading/exists/error/state moved.
	ChangeState
)

// Change is one notification delivered to subscribers.
//
// For ChangePut and ChangeDelete, Entry carries the affected entry (for
// deletes, the tombstone event as received). For ChangeReset and
// ChangeState, Entry is zero and State carries the mirror state at the
// time of the notification.
type Change struct {
	Kind  ChangeKind
	Entry kv.Entry
	State State
}

// registry fans change notifications out to subscribers.
//
// Delivery is non-blocking: a subscriber whose buffer is full misses the
// notification and is expected to reconcile from Entries() on its next
// read. This keeps the watch loop from ever blocking on a slow widget.
type registry struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

func newRegistry() *registry {
	return &registry{subs: make(map[int]chan Change)}
}

// subscribe registers a new subscriber with the given buffer size.
// The returned cancel func closes the channel and is safe to call once
// from any goroutine; it is race-free with concurrent notify calls.
func (r *registry) subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// notify delivers a change to every subscriber without blocking.
func (r *registry) notify(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
