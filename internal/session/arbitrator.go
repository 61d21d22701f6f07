package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/loop"
	"github.com/roach88/tandem/internal/metrics"
	"github.com/roach88/tandem/internal/model"
)

// Arbitrator enforces a single active session per account.
//
// Snapshots are evaluated on the loop. Start and Stop are safe from any
// goroutine.
type Arbitrator struct {
	store    docstore.Store
	loop     *loop.Loop
	registry *Registry
	logger   *slog.Logger
	metrics  metrics.Recorder

	mu  sync.Mutex
	cur *watch
}

// watch is one Start..Stop period.
type watch struct {
	accountID string
	onLost    func()
	unsub     docstore.Unsubscribe
	stopped   atomic.Bool

	// lost is only touched on the loop.
	lost bool
}

// ArbitratorOption configures an Arbitrator.
type ArbitratorOption func(*Arbitrator)

// WithArbitratorLogger sets the logger.
func WithArbitratorLogger(l *slog.Logger) ArbitratorOption {
	return func(a *Arbitrator) {
		a.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) ArbitratorOption {
	return func(a *Arbitrator) {
		a.metrics = m
	}
}

// NewArbitrator creates an Arbitrator comparing against registry's baseline.
func NewArbitrator(store docstore.Store, l *loop.Loop, registry *Registry, opts ...ArbitratorOption) *Arbitrator {
	a := &Arbitrator{
		store:    store,
		loop:     l,
		registry: registry,
		logger:   slog.Default(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start watches the sessions of accountID. onLost runs on the loop, at
// most once, when a newer session for the account appears. A previous
// watch is stopped first.
func (a *Arbitrator) Start(ctx context.Context, accountID string, onLost func()) error {
	a.Stop()

	w := &watch{accountID: accountID, onLost: onLost}
	q := docstore.From(model.Sessions).Where("accountId", docstore.OpEqual, accountID)
	unsub, err := a.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		a.loop.Post(func() {
			a.evaluate(w, snap)
		})
	})
	if err != nil {
		return fmt.Errorf("watch sessions: %w", err)
	}
	w.unsub = unsub

	a.mu.Lock()
	a.cur = w
	a.mu.Unlock()
	return nil
}

// Stop ends the current watch. Snapshots already queued are ignored.
func (a *Arbitrator) Stop() {
	a.mu.Lock()
	w := a.cur
	a.cur = nil
	a.mu.Unlock()

	if w == nil {
		return
	}
	w.stopped.Store(true)
	w.unsub()
}

// evaluate applies the arbitration rule to one snapshot. Runs on the loop.
func (a *Arbitrator) evaluate(w *watch, snap docstore.Snapshot) {
	if w.stopped.Load() || w.lost {
		return
	}
	a.metrics.RecordSnapshot(model.Sessions)
	if snap.Err != nil {
		a.logger.Warn("session snapshot failed", "account", w.accountID, "error", snap.Err)
		return
	}

	baseline := a.registry.Baseline()
	if baseline == 0 {
		return
	}

	own := model.SessionID(w.accountID, a.registry.DeviceID())
	var (
		others []docstore.Document
		newest int64
	)
	for _, doc := range snap.Docs {
		if doc.ID == own {
			continue
		}
		others = append(others, doc)
		if last := model.SessionFromDoc(doc).LastActive; last > newest {
			newest = last
		}
	}
	if len(others) == 0 {
		return
	}

	if newest > baseline {
		w.lost = true
		a.metrics.RecordArbitrationLoss()
		a.logger.Info("signed in on another device",
			"account", w.accountID,
			"baseline", baseline,
			"newest", newest)
		if w.onLost != nil {
			w.onLost()
		}
		return
	}

	for _, doc := range others {
		path := doc.Path
		a.loop.Defer(func() {
			a.deleteStale(w, path)
		})
	}
}

// deleteStale removes a stale session record. Failures are logged and
// counted, never surfaced; the next snapshot retries.
func (a *Arbitrator) deleteStale(w *watch, path string) {
	if w.stopped.Load() || w.lost {
		return
	}
	err := a.store.Delete(context.Background(), path)
	a.metrics.RecordStaleSessionDelete(err == nil)
	if err != nil {
		a.logger.Warn("stale session delete failed", "path", path, "error", err)
		return
	}
	a.logger.Debug("stale session deleted", "path", path)
}
