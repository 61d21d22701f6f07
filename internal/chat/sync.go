package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/directory"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/loop"
	"github.com/roach88/tandem/internal/metrics"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/notify"
)

// Defaults for Sync.
const (
	DefaultFreshnessWindow = 30 * time.Second
	DefaultBackfillRate    = 5 // lookups per second
)

// DefaultPlaceholders are organisation names treated as missing.
var DefaultPlaceholders = []string{"Unknown", "N/A", "-"}

// Sync maintains the live conversation list of the signed-in account.
//
// Thread-safety model:
//   - Start(), Stop(): safe from any goroutine except a store listener
//   - everything else: only on the loop
type Sync struct {
	store     docstore.Store
	loop      *loop.Loop
	dir       directory.Directory
	notifier  notify.Notifier
	clock     clock.Clock
	logger    *slog.Logger
	metrics   metrics.Recorder
	limiter   *rate.Limiter
	freshness time.Duration

	placeholders map[string]bool
	onChange     func()
	onOpen       func(conversationID string)

	// Loop-owned state.
	self     string
	watch    *watch
	convs    []model.Conversation
	unread   int
	gen      uint64 // bumped by every applied snapshot
	notified map[notificationKey]bool
	inflight map[backfillKey]bool
	settled  map[backfillKey]string // cached value a lookup already ran against
}

// SyncOption configures a Sync.
type SyncOption func(*Sync)

// WithNotifier sets the platform notifier. Without one no notifications
// are shown.
func WithNotifier(n notify.Notifier) SyncOption {
	return func(s *Sync) {
		s.notifier = n
	}
}

// WithClock sets the clock used for the freshness window.
func WithClock(c clock.Clock) SyncOption {
	return func(s *Sync) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SyncOption {
	return func(s *Sync) {
		s.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) SyncOption {
	return func(s *Sync) {
		s.metrics = m
	}
}

// WithFreshnessWindow sets how old a last message may be and still
// trigger a notification.
//
// Default: 30s (DefaultFreshnessWindow)
func WithFreshnessWindow(d time.Duration) SyncOption {
	return func(s *Sync) {
		s.freshness = d
	}
}

// WithPlaceholders sets the organisation names treated as missing.
func WithPlaceholders(names []string) SyncOption {
	return func(s *Sync) {
		s.placeholders = toSet(names)
	}
}

// WithBackfillRate limits directory lookups per second. Zero or less
// removes the limit.
func WithBackfillRate(perSecond int) SyncOption {
	return func(s *Sync) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithOnChange registers a callback run on the loop after local state
// changes.
func WithOnChange(fn func()) SyncOption {
	return func(s *Sync) {
		s.onChange = fn
	}
}

// WithOnOpen registers the callback a notification click runs, on the
// loop, with the conversation id.
func WithOnOpen(fn func(conversationID string)) SyncOption {
	return func(s *Sync) {
		s.onOpen = fn
	}
}

// NewSync creates a Sync. dir is used for participant backfill.
func NewSync(store docstore.Store, l *loop.Loop, dir directory.Directory, opts ...SyncOption) *Sync {
	s := &Sync{
		store:        store,
		loop:         l,
		dir:          dir,
		clock:        clock.Real{},
		logger:       slog.Default(),
		metrics:      metrics.Nop{},
		limiter:      rate.NewLimiter(rate.Limit(DefaultBackfillRate), 1),
		freshness:    DefaultFreshnessWindow,
		placeholders: toSet(DefaultPlaceholders),
		notified:     make(map[notificationKey]bool),
		inflight:     make(map[backfillKey]bool),
		settled:      make(map[backfillKey]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start follows the conversations self participates in, replacing any
// previous subscription. The first snapshot is applied asynchronously.
func (s *Sync) Start(ctx context.Context, self string) error {
	if self == "" {
		return fmt.Errorf("start conversation sync: empty account id")
	}
	w := newWatch()

	var prev *watch
	err := s.loop.Call(ctx, func() {
		prev = s.watch
		s.watch = w
		s.self = self
		s.reset()
		s.changed()
	})
	if err != nil {
		return fmt.Errorf("start conversation sync: %w", err)
	}
	prev.stop()

	q := docstore.From(model.Conversations).
		Where("participants", docstore.OpArrayContains, self).
		Order("updatedAt", docstore.Desc)
	unsub, err := s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		s.loop.Post(func() {
			s.apply(w, snap)
		})
	})
	if err != nil {
		w.stop()
		return fmt.Errorf("subscribe conversations: %w", err)
	}
	w.attach(unsub)

	s.logger.Debug("conversation sync started", "account", self)
	return nil
}

// Stop disposes the subscription, cancels backfill lookups and clears the
// local list.
func (s *Sync) Stop(ctx context.Context) error {
	var w *watch
	err := s.loop.Call(ctx, func() {
		w = s.watch
		s.watch = nil
		s.self = ""
		s.reset()
		s.changed()
	})
	w.stop()
	return err
}

func (s *Sync) reset() {
	s.convs = nil
	s.unread = 0
	s.gen++
	s.notified = make(map[notificationKey]bool)
	s.inflight = make(map[backfillKey]bool)
	s.settled = make(map[backfillKey]string)
}

// apply replaces local state with one snapshot. Runs on the loop.
func (s *Sync) apply(w *watch, snap docstore.Snapshot) {
	if w != s.watch {
		return
	}
	s.metrics.RecordSnapshot(model.Conversations)
	if snap.Err != nil {
		// Keep the last good list; the store recovers the subscription.
		s.logger.Warn("conversation snapshot failed", "account", s.self, "error", snap.Err)
		return
	}

	convs := make([]model.Conversation, len(snap.Docs))
	for i, doc := range snap.Docs {
		convs[i] = model.ConversationFromDoc(doc)
	}
	s.convs = convs
	s.gen++
	s.recount()

	s.scheduleBackfill(w)
	s.notifyFresh()
	s.changed()
}

func (s *Sync) recount() {
	s.unread = model.UnreadConversations(s.convs, s.self)
}

func (s *Sync) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Self returns the followed account. Loop only.
func (s *Sync) Self() string {
	return s.self
}

// Active reports whether a subscription is running. Loop only.
func (s *Sync) Active() bool {
	return s.watch != nil
}

// Conversations returns a copy of the local list, newest first. Loop only.
func (s *Sync) Conversations() []model.Conversation {
	out := make([]model.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out
}

// Conversation returns the local entry for id. Loop only.
func (s *Sync) Conversation(id string) (model.Conversation, bool) {
	for _, c := range s.convs {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return model.Conversation{}, false
}

// UnreadConversationsCount is the number of conversations where someone
// else spoke last and the unread counter is positive. Loop only.
func (s *Sync) UnreadConversationsCount() int {
	return s.unread
}

// HasNewMessages reports whether any conversation is unread. Loop only.
func (s *Sync) HasNewMessages() bool {
	return s.unread > 0
}

// setUnread changes the local unread counter of id and returns the
// previous value and the snapshot generation it applied to. Loop only.
func (s *Sync) setUnread(id string, n int64) (prev int64, gen uint64, ok bool) {
	for i := range s.convs {
		if s.convs[i].ID == id {
			prev = s.convs[i].UnreadCount
			s.convs[i].UnreadCount = n
			s.recount()
			s.changed()
			return prev, s.gen, true
		}
	}
	return 0, s.gen, false
}

// restoreUnread undoes setUnread unless a newer snapshot has replaced the
// list since. Loop only.
func (s *Sync) restoreUnread(id string, prev int64, gen uint64) bool {
	if gen != s.gen {
		return false
	}
	for i := range s.convs {
		if s.convs[i].ID == id {
			s.convs[i].UnreadCount = prev
			s.recount()
			s.changed()
			return true
		}
	}
	return false
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
