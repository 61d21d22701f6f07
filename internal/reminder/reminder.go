// Package reminder tracks the unread reminder count of an account group.
//
// The count has two sources. A push subscription on unacknowledged
// reminders keeps it current and is authoritative. Refresh is a
// user-triggered pull that re-reads the count; it is rate limited:
//   - while a fetch is outstanding further calls are no-ops
//   - a call within the minimum interval of the last completed fetch is
//     deferred to the end of the interval, replacing any call already
//     deferred, so at most one run is pending
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/metrics"
	"github.com/roach88/tandem/internal/model"
)

// DefaultMinInterval is the minimum spacing between refresh fetches.
const DefaultMinInterval = time.Second

// ackAttempts bounds the read-check-write rounds of Acknowledge when the
// reminder keeps changing underneath it.
const ackAttempts = 3

var (
	// ErrNotStarted is returned when no account group is being tracked.
	ErrNotStarted = errors.New("reminder tracking not started")

	// ErrAlreadyAcknowledged is returned when acknowledging a reminder
	// that is already sent.
	ErrAlreadyAcknowledged = errors.New("reminder already acknowledged")
)

// Debouncer owns the reminder count of one account group.
//
// Thread-safety: safe for concurrent use. Deferred refreshes run on the
// clock's timer goroutine.
type Debouncer struct {
	store       docstore.Store
	clock       clock.Clock
	logger      *slog.Logger
	metrics     metrics.Recorder
	minInterval time.Duration
	onCount     func(int)

	mu        sync.Mutex
	group     string
	gen       uint64 // bumped by Start and Stop
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     docstore.Unsubscribe
	count     int
	inflight  bool
	lastFetch time.Time
	pending   clock.Timer
	pendingID uint64
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock sets the clock used for the interval and deferred runs.
func WithClock(c clock.Clock) Option {
	return func(d *Debouncer) {
		d.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Debouncer) {
		d.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(d *Debouncer) {
		d.metrics = m
	}
}

// WithMinInterval sets the minimum spacing between fetches.
//
// Default: 1s (DefaultMinInterval)
func WithMinInterval(iv time.Duration) Option {
	return func(d *Debouncer) {
		d.minInterval = iv
	}
}

// WithOnCount registers a callback receiving every published count. It is
// called from store listeners and timer goroutines and must not block.
func WithOnCount(fn func(int)) Option {
	return func(d *Debouncer) {
		d.onCount = fn
	}
}

// New creates a Debouncer. Call Start to begin tracking a group.
func New(store docstore.Store, opts ...Option) *Debouncer {
	d := &Debouncer{
		store:       store,
		clock:       clock.Real{},
		logger:      slog.Default(),
		metrics:     metrics.Nop{},
		minInterval: DefaultMinInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func unreadQuery(group string) docstore.Query {
	return docstore.From(model.Reminders).
		Where("accountGroupId", docstore.OpEqual, group).
		Where("sent", docstore.OpEqual, false)
}

// Start tracks group's unread reminders, replacing any previous group.
func (d *Debouncer) Start(ctx context.Context, group string) error {
	if group == "" {
		return fmt.Errorf("start reminders: empty account group")
	}
	d.Stop()

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.group = group
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	unsub, err := d.store.Subscribe(ctx, unreadQuery(group), func(snap docstore.Snapshot) {
		d.applySnapshot(gen, snap)
	})
	if err != nil {
		d.Stop()
		return fmt.Errorf("subscribe reminders: %w", err)
	}

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		unsub()
		return nil
	}
	d.unsub = unsub
	d.mu.Unlock()
	return nil
}

// Stop ends the subscription, cancels any deferred refresh and forgets the
// group.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.gen++
	unsub := d.unsub
	cancel := d.cancel
	if d.pending != nil {
		d.pending.Stop()
	}
	d.unsub = nil
	d.cancel = nil
	d.ctx = nil
	d.pending = nil
	d.group = ""
	d.count = 0
	d.inflight = false
	d.lastFetch = time.Time{}
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
}

func (d *Debouncer) applySnapshot(gen uint64, snap docstore.Snapshot) {
	d.metrics.RecordSnapshot(model.Reminders)
	if snap.Err != nil {
		d.logger.Warn("reminder snapshot failed", "error", snap.Err)
		return
	}
	d.publish(gen, len(snap.Docs))
}

func (d *Debouncer) publish(gen uint64, n int) {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.count = n
	d.mu.Unlock()

	if d.onCount != nil {
		d.onCount(n)
	}
}

// Count returns the last published unread count.
func (d *Debouncer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Group returns the tracked account group, or "".
func (d *Debouncer) Group() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.group
}

// Refresh re-reads the unread count. A call while a fetch is outstanding
// does nothing; a call too soon after the last fetch is deferred. Only an
// immediate fetch reports its error; deferred runs log theirs.
func (d *Debouncer) Refresh(ctx context.Context) error {
	d.mu.Lock()
	if d.group == "" {
		d.mu.Unlock()
		return ErrNotStarted
	}
	if d.inflight {
		d.mu.Unlock()
		d.metrics.RecordRefresh(metrics.RefreshInFlight)
		return nil
	}
	if !d.lastFetch.IsZero() {
		if elapsed := d.clock.Now().Sub(d.lastFetch); elapsed < d.minInterval {
			d.deferLocked(d.minInterval - elapsed)
			d.mu.Unlock()
			d.metrics.RecordRefresh(metrics.RefreshDeferred)
			return nil
		}
	}
	d.inflight = true
	gen, group := d.gen, d.group
	d.mu.Unlock()

	return d.fetch(ctx, gen, group)
}

// deferLocked replaces the pending run with one firing after delay.
func (d *Debouncer) deferLocked(delay time.Duration) {
	if d.pending != nil {
		d.pending.Stop()
	}
	d.pendingID++
	id, gen := d.pendingID, d.gen
	d.pending = d.clock.AfterFunc(delay, func() {
		d.runDeferred(gen, id)
	})
}

func (d *Debouncer) runDeferred(gen, id uint64) {
	d.mu.Lock()
	if d.gen != gen || d.pendingID != id {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	if d.inflight {
		d.mu.Unlock()
		return
	}
	d.inflight = true
	ctx, group := d.ctx, d.group
	d.mu.Unlock()

	if err := d.fetch(ctx, gen, group); err != nil {
		d.logger.Warn("deferred reminder refresh failed", "group", group, "error", err)
	}
}

func (d *Debouncer) fetch(ctx context.Context, gen uint64, group string) error {
	start := d.clock.Now()
	docs, err := d.store.Query(ctx, unreadQuery(group))

	d.mu.Lock()
	if d.gen == gen {
		d.inflight = false
		d.lastFetch = d.clock.Now()
	}
	d.mu.Unlock()

	if err != nil {
		d.metrics.RecordRefresh(metrics.RefreshFailed)
		return fmt.Errorf("refresh reminders: %w", err)
	}
	d.metrics.RecordRefresh(metrics.RefreshFetched)
	d.metrics.RecordRefreshLatency(d.clock.Now().Sub(start))
	d.publish(gen, len(docs))
	return nil
}

// Latest returns up to n reminders of the group, newest effective time
// first. All of the group's reminders are fetched and sorted locally.
func (d *Debouncer) Latest(ctx context.Context, n int) ([]model.Reminder, error) {
	group := d.Group()
	if group == "" {
		return nil, ErrNotStarted
	}
	if n <= 0 {
		return []model.Reminder{}, nil
	}

	q := docstore.From(model.Reminders).Where("accountGroupId", docstore.OpEqual, group)
	docs, err := d.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("latest reminders: %w", err)
	}

	rs := make([]model.Reminder, len(docs))
	for i, doc := range docs {
		rs[i] = model.ReminderFromDoc(doc)
	}
	model.SortByEffectiveTime(rs)
	if len(rs) > n {
		rs = rs[:n]
	}
	return rs, nil
}

// Acknowledge marks reminder id sent. A reminder outside the tracked
// group is reported as not found. The write only applies if the reminder
// is unchanged since it was read, so of two devices acknowledging at once
// exactly one succeeds and the other gets ErrAlreadyAcknowledged.
func (d *Debouncer) Acknowledge(ctx context.Context, id string) error {
	group := d.Group()
	if group == "" {
		return ErrNotStarted
	}
	path := model.ReminderPath(id)
	var err error
	for range ackAttempts {
		var doc docstore.Document
		doc, err = d.store.Get(ctx, path)
		if err != nil {
			return fmt.Errorf("acknowledge reminder: %w", err)
		}
		r := model.ReminderFromDoc(doc)
		if r.AccountGroupID != group {
			return fmt.Errorf("acknowledge reminder %s: %w", id, docstore.ErrNotFound)
		}
		if r.Sent {
			return ErrAlreadyAcknowledged
		}
		_, err = d.store.Update(ctx, path, docstore.Fields{"sent": true}, docstore.LastUpdateTime(doc.UpdateTime))
		if !errors.Is(err, docstore.ErrFailedPrecondition) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("acknowledge reminder: %w", err)
	}
	return nil
}
