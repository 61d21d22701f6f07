package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/device"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

// DefaultHeartbeatInterval is how often lastActive is refreshed.
const DefaultHeartbeatInterval = 60 * time.Second

// ErrNotRegistered is returned by operations that need a registered session.
var ErrNotRegistered = errors.New("session not registered")

// Registry owns this device's session record.
//
// Thread-safety: all methods are safe for concurrent use. The heartbeat
// runs on timer goroutines and talks to the store directly.
type Registry struct {
	store      docstore.Store
	deviceID   string
	clock      clock.Clock
	logger     *slog.Logger
	interval   time.Duration
	descriptor device.Descriptor

	mu        sync.Mutex
	accountID string
	baseline  int64 // lastActive written by Register; never moved by heartbeats
	createdAt int64
	gen       int // bumped on every Register/Stop so stale timers do nothing
	timer     clock.Timer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock that drives the heartbeat.
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithHeartbeatInterval sets the heartbeat interval.
//
// Default: 60s (DefaultHeartbeatInterval)
func WithHeartbeatInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.interval = d
	}
}

// WithDescriptor sets the device descriptor stored on the record.
func WithDescriptor(d device.Descriptor) RegistryOption {
	return func(r *Registry) {
		r.descriptor = d
	}
}

// NewRegistry creates a Registry for deviceID.
func NewRegistry(store docstore.Store, deviceID string, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:    store,
		deviceID: deviceID,
		clock:    clock.Real{},
		logger:   slog.Default(),
		interval: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DeviceID returns the device this registry writes for.
func (r *Registry) DeviceID() string {
	return r.deviceID
}

// AccountID returns the registered account, or "".
func (r *Registry) AccountID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accountID
}

// Baseline returns the session baseline: the server timestamp our record
// was created with. Zero before Register.
func (r *Registry) Baseline() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseline
}

// Register writes the session record for (accountID, device) with
// createdAt = lastActive = server time, captures that time as the
// baseline, and starts the heartbeat. A heartbeat running for a previous
// registration is stopped first.
func (r *Registry) Register(ctx context.Context, accountID string) (model.Session, error) {
	if accountID == "" {
		return model.Session{}, fmt.Errorf("register session: empty account id")
	}
	r.Stop()

	path := model.SessionPath(accountID, r.deviceID)
	res, err := r.store.Set(ctx, path, docstore.Fields{
		"accountId":  accountID,
		"deviceId":   r.deviceID,
		"createdAt":  docstore.ServerTimestamp,
		"lastActive": docstore.ServerTimestamp,
		"device":     model.DescriptorFields(r.descriptor),
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("register session: %w", err)
	}

	r.mu.Lock()
	r.gen++
	r.accountID = accountID
	r.baseline = res.UpdateTime
	r.createdAt = res.UpdateTime
	r.scheduleLocked(r.gen)
	r.mu.Unlock()

	r.logger.Info("session registered",
		"account", accountID,
		"device", r.deviceID,
		"baseline", res.UpdateTime)

	return model.Session{
		AccountID:  accountID,
		DeviceID:   r.deviceID,
		CreatedAt:  res.UpdateTime,
		LastActive: res.UpdateTime,
		Device:     r.descriptor,
	}, nil
}

// Stop cancels the heartbeat. The record is left in place. The account
// and baseline are kept so a later Unregister can still delete it.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Unregister stops the heartbeat and deletes the session record.
func (r *Registry) Unregister(ctx context.Context) error {
	r.Stop()

	r.mu.Lock()
	accountID := r.accountID
	r.accountID = ""
	r.baseline = 0
	r.createdAt = 0
	r.mu.Unlock()

	if accountID == "" {
		return ErrNotRegistered
	}
	if err := r.store.Delete(ctx, model.SessionPath(accountID, r.deviceID)); err != nil {
		return fmt.Errorf("unregister session: %w", err)
	}
	r.logger.Info("session unregistered", "account", accountID, "device", r.deviceID)
	return nil
}

func (r *Registry) scheduleLocked(gen int) {
	r.timer = r.clock.AfterFunc(r.interval, func() {
		r.beat(gen)
	})
}

// beat refreshes lastActive. A record deleted behind our back is
// recreated, unless a newer session for the account exists: then this
// device has been superseded and the heartbeat ends.
func (r *Registry) beat(gen int) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	accountID, baseline, createdAt := r.accountID, r.baseline, r.createdAt
	r.mu.Unlock()

	ctx := context.Background()
	path := model.SessionPath(accountID, r.deviceID)
	_, err := r.store.Update(ctx, path, docstore.Fields{"lastActive": docstore.ServerTimestamp})
	switch {
	case err == nil:
	case docstore.IsNotFound(err):
		superseded, qerr := r.superseded(ctx, accountID, baseline)
		if qerr != nil {
			r.logger.Warn("heartbeat check failed", "account", accountID, "error", qerr)
			break
		}
		if superseded {
			r.logger.Info("heartbeat stopped: newer session exists", "account", accountID)
			r.mu.Lock()
			if gen == r.gen {
				r.gen++
				r.timer = nil
			}
			r.mu.Unlock()
			return
		}
		_, err = r.store.Set(ctx, path, docstore.Fields{
			"accountId":  accountID,
			"deviceId":   r.deviceID,
			"createdAt":  createdAt,
			"lastActive": docstore.ServerTimestamp,
			"device":     model.DescriptorFields(r.descriptor),
		})
		if err != nil {
			r.logger.Warn("heartbeat recreate failed", "account", accountID, "error", err)
		} else {
			r.logger.Debug("heartbeat recreated session", "account", accountID)
		}
	default:
		r.logger.Warn("heartbeat failed", "account", accountID, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.gen {
		r.scheduleLocked(gen)
	}
}

// superseded reports whether another device of the account has a record
// newer than baseline.
func (r *Registry) superseded(ctx context.Context, accountID string, baseline int64) (bool, error) {
	docs, err := r.store.Query(ctx, docstore.From(model.Sessions).Where("accountId", docstore.OpEqual, accountID))
	if err != nil {
		return false, err
	}
	own := model.SessionID(accountID, r.deviceID)
	for _, doc := range docs {
		if doc.ID == own {
			continue
		}
		if model.SessionFromDoc(doc).LastActive > baseline {
			return true, nil
		}
	}
	return false, nil
}
