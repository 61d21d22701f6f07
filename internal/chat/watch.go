package chat

import (
	"context"
	"sync"

	"github.com/roach88/tandem/internal/docstore"
)

// watch is one subscription period. Snapshots are applied only while the
// watch is the current one on the loop; stop detaches it from the store
// and cancels work started on its behalf.
type watch struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	unsub   docstore.Unsubscribe
	stopped bool
}

func newWatch() *watch {
	ctx, cancel := context.WithCancel(context.Background())
	return &watch{ctx: ctx, cancel: cancel}
}

// attach records the store handle. If the watch was stopped meanwhile the
// subscription is released immediately.
func (w *watch) attach(unsub docstore.Unsubscribe) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		unsub()
		return
	}
	w.unsub = unsub
	w.mu.Unlock()
}

// stop is safe to call more than once and from any goroutine except a
// store listener.
func (w *watch) stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	unsub := w.unsub
	w.unsub = nil
	w.mu.Unlock()

	w.cancel()
	if unsub != nil {
		unsub()
	}
}
