// Package client is the facade the user interface drives: sign-in with
// single-session arbitration, the live conversation list, the open
// conversation, read state, local notifications and the reminder count.
//
// A Client runs its own loop goroutine that owns all local state. Public
// methods are safe from any goroutine. State-change and notice hooks run
// on the loop; they receive everything they need and must not call back
// into blocking Client methods.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tandem/internal/chat"
	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/device"
	"github.com/roach88/tandem/internal/directory"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/identity"
	"github.com/roach88/tandem/internal/loop"
	"github.com/roach88/tandem/internal/metrics"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/notify"
	"github.com/roach88/tandem/internal/reminder"
	"github.com/roach88/tandem/internal/session"
)

var (
	// ErrNotSignedIn is returned by operations that need an account.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
)

// Client is the synchronisation client of one device.
type Client struct {
	store    docstore.Store
	dir      *directory.Store
	provider identity.Provider
	notifier notify.Notifier
	logger   *slog.Logger
	deviceID string

	loop       *loop.Loop
	stopLoop   context.CancelFunc
	registry   *session.Registry
	arbitrator *session.Arbitrator
	sync       *chat.Sync
	channel    *chat.Channel
	reconciler *chat.Reconciler
	reminders  *reminder.Debouncer

	// opMu serialises Login, Logout, Close and loss teardown.
	opMu sync.Mutex

	mu      sync.Mutex
	account *model.Account
	gen     uint64 // bumped on every sign-in and sign-out
	closed  bool

	// Loop-owned.
	onState  []func(State)
	onNotice []func(Notice)
}

type settings struct {
	provider           identity.Provider
	notifier           notify.Notifier
	clock              clock.Clock
	logger             *slog.Logger
	metrics            metrics.Recorder
	descriptor         device.Descriptor
	heartbeatInterval  time.Duration
	freshnessWindow    time.Duration
	refreshMinInterval time.Duration
	unreadPolicy       chat.UnreadPolicy
	placeholders       []string
	backfillRate       int
}

// Option configures a Client.
type Option func(*settings)

// WithProvider sets the identity provider used by Login.
func WithProvider(p identity.Provider) Option {
	return func(s *settings) { s.provider = p }
}

// WithNotifier sets the platform notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithClock sets the clock for heartbeats, freshness and debouncing.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *settings) { s.metrics = m }
}

// WithDescriptor sets the device descriptor written on the session.
func WithDescriptor(d device.Descriptor) Option {
	return func(s *settings) { s.descriptor = d }
}

// WithHeartbeatInterval sets the session heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *settings) { s.heartbeatInterval = d }
}

// WithFreshnessWindow sets the notification freshness window.
func WithFreshnessWindow(d time.Duration) Option {
	return func(s *settings) { s.freshnessWindow = d }
}

// WithRefreshMinInterval sets the reminder refresh interval.
func WithRefreshMinInterval(d time.Duration) Option {
	return func(s *settings) { s.refreshMinInterval = d }
}

// WithUnreadPolicy sets how sends change the unread counter.
func WithUnreadPolicy(p chat.UnreadPolicy) Option {
	return func(s *settings) { s.unreadPolicy = p }
}

// WithPlaceholders sets organisation names treated as missing.
func WithPlaceholders(names []string) Option {
	return func(s *settings) { s.placeholders = names }
}

// WithBackfillRate limits organisation lookups per second.
func WithBackfillRate(perSecond int) Option {
	return func(s *settings) { s.backfillRate = perSecond }
}

// New creates a client for device deviceID and starts its loop.
func New(store docstore.Store, deviceID string, opts ...Option) *Client {
	s := settings{
		clock:              clock.Real{},
		logger:             slog.Default(),
		metrics:            metrics.Nop{},
		heartbeatInterval:  session.DefaultHeartbeatInterval,
		freshnessWindow:    chat.DefaultFreshnessWindow,
		refreshMinInterval: reminder.DefaultMinInterval,
		unreadPolicy:       chat.UnreadReset,
		placeholders:       chat.DefaultPlaceholders,
		backfillRate:       chat.DefaultBackfillRate,
	}
	for _, opt := range opts {
		opt(&s)
	}

	c := &Client{
		store:    store,
		dir:      directory.New(store),
		provider: s.provider,
		notifier: s.notifier,
		logger:   s.logger.With("device", deviceID),
		deviceID: deviceID,
		loop:     loop.New(s.logger),
	}

	c.registry = session.NewRegistry(store, deviceID,
		session.WithClock(s.clock),
		session.WithLogger(c.logger),
		session.WithHeartbeatInterval(s.heartbeatInterval),
		session.WithDescriptor(s.descriptor))
	c.arbitrator = session.NewArbitrator(store, c.loop, c.registry,
		session.WithArbitratorLogger(c.logger),
		session.WithMetrics(s.metrics))
	c.sync = chat.NewSync(store, c.loop, c.dir,
		chat.WithNotifier(s.notifier),
		chat.WithClock(s.clock),
		chat.WithLogger(c.logger),
		chat.WithMetrics(s.metrics),
		chat.WithFreshnessWindow(s.freshnessWindow),
		chat.WithPlaceholders(s.placeholders),
		chat.WithBackfillRate(s.backfillRate),
		chat.WithOnChange(c.changed),
		chat.WithOnOpen(c.open))
	c.channel = chat.NewChannel(store, c.loop, c.sync,
		chat.WithUnreadPolicy(s.unreadPolicy),
		chat.WithChannelLogger(c.logger),
		chat.WithChannelMetrics(s.metrics),
		chat.WithChannelOnChange(c.changed))
	c.reconciler = chat.NewReconciler(store, c.loop, c.sync, c.logger)
	c.reminders = reminder.New(store,
		reminder.WithClock(s.clock),
		reminder.WithLogger(c.logger),
		reminder.WithMetrics(s.metrics),
		reminder.WithMinInterval(s.refreshMinInterval),
		reminder.WithOnCount(func(int) { c.loop.Post(c.changed) }))

	ctx, cancel := context.WithCancel(context.Background())
	c.stopLoop = cancel
	go func() {
		if err := c.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("client loop stopped", "error", err)
		}
	}()
	return c
}

// DeviceID returns the device this client signs in as.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// Directory returns the account directory the client reads and writes.
func (c *Client) Directory() *directory.Store {
	return c.dir
}

// Close disposes every subscription and timer and stops the loop. The
// session record is left for the next start. Safe to call more than once.
func (c *Client) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.teardown(context.Background())
	c.setAccount(nil)
	c.loop.Stop()
	<-c.loop.Done()
	c.stopLoop()
	return nil
}

// open selects a conversation on behalf of a notification click. Runs on
// the loop, so the selection itself happens off it.
func (c *Client) open(conversationID string) {
	go func() {
		if err := c.SelectConversation(context.Background(), conversationID); err != nil {
			c.logger.Warn("open conversation from notification failed", "conversation", conversationID, "error", err)
		}
	}()
}
