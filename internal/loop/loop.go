// Package loop implements the single-goroutine reactor that owns all local
// synchronisation state.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Store listeners, timers and public API calls never touch client state
// directly. They Post a task; Run executes tasks one at a time in FIFO
// order on a single goroutine. This gives the cooperative, non-preemptive
// execution model the sync layer is reasoned about in:
//   - computation inside a task never races with another task
//   - listener snapshots for one subscription are applied in delivery order
//   - no locks are needed around client state
//
// Deferred Tasks:
// A task that reacts to a snapshot must not write to the data its own
// listener observes while still inside the reaction (the write would
// trigger another snapshot before the current one is fully applied).
// Such writes are scheduled with Defer: deferred tasks run on the loop
// goroutine after the current task returns and before the next queued task
// starts. Writes issued that way are expected to be idempotent so repeated
// triggering converges instead of looping.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped is returned when a task is submitted to a loop that has been
// stopped or whose Run has returned.
var ErrStopped = errors.New("loop stopped")

// ErrNotSettled is returned by Settle when the loop keeps producing work.
var ErrNotSettled = errors.New("loop did not settle")

// maxSettleRounds bounds Settle so a feedback loop fails loudly in tests
// instead of hanging.
const maxSettleRounds = 1000

// Loop is a single-writer task reactor.
//
// Thread-safety model:
//   - Post(), Call(), Settle(), Stop(): safe from any goroutine
//   - Defer(): only from a task running on the loop
//   - Run(): must be called from exactly one goroutine
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger

	// deferred is only touched from the Run goroutine.
	deferred []func()

	doneOnce sync.Once
	done     chan struct{}
}

// New creates a loop. Tasks may be posted before Run starts; they are
// buffered until Run picks them up.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		queue:  newTaskQueue(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Post submits fn to run on the loop goroutine.
// Returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Enqueue(fn)
}

// Defer schedules fn to run after the current task (and any deferred tasks
// scheduled before it) completes. Must be called from a task running on the
// loop.
func (l *Loop) Defer(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// Call runs fn on the loop and waits until fn and everything it deferred has
// run. Returns ErrStopped if the loop is stopped before fn completes, or the
// context error if ctx ends first.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	_, err := l.call(ctx, fn)
	return err
}

// Settle blocks until the loop has no queued or deferred work left.
// Used by tests and by one-shot CLI commands to wait for cascading
// reactions (snapshot -> deferred write -> snapshot) to finish.
func (l *Loop) Settle(ctx context.Context) error {
	for i := 0; i < maxSettleRounds; i++ {
		pending, err := l.call(ctx, func() {})
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
	}
	return ErrNotSettled
}

func (l *Loop) call(ctx context.Context, fn func()) (int, error) {
	done := make(chan struct{})
	var pending int
	ok := l.Post(func() {
		fn()
		l.Defer(func() {
			pending = l.queue.Len() + len(l.deferred)
			close(done)
		})
	})
	if !ok {
		return 0, ErrStopped
	}

	select {
	case <-done:
		return pending, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.done:
		// Run may have executed the task right before returning
		select {
		case <-done:
			return pending, nil
		default:
			return 0, ErrStopped
		}
	}
}

// Run executes tasks until ctx is cancelled or Stop is called and the queue
// drains. Blocks; call from exactly one goroutine.
//
// ERROR HANDLING: a panicking task is logged and the loop keeps going, so one
// malformed snapshot cannot wedge the client.
func (l *Loop) Run(ctx context.Context) error {
	defer l.doneOnce.Do(func() { close(l.done) })
	l.logger.Debug("loop starting")

	for {
		fn, ok := l.queue.TryDequeue()
		if ok {
			l.runTask(fn)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which makes this case fire immediately
			if l.queue.Closed() && l.queue.Len() == 0 {
				l.logger.Debug("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once already queued tasks have run.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// runTask runs fn and then drains the deferred list in FIFO order.
// Deferred tasks may defer further tasks; those run in the same drain.
func (l *Loop) runTask(fn func()) {
	l.safely(fn)
	for len(l.deferred) > 0 {
		next := l.deferred[0]
		l.deferred[0] = nil
		l.deferred = l.deferred[1:]
		l.safely(next)
	}
	l.deferred = l.deferred[:0]
}

func (l *Loop) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
