package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/loop"
	"github.com/roach88/tandem/internal/model"
)

// Reconciler marks conversations read.
type Reconciler struct {
	store  docstore.Store
	loop   *loop.Loop
	sync   *Sync
	logger *slog.Logger
}

// NewReconciler creates a Reconciler for the account s follows.
func NewReconciler(store docstore.Store, l *loop.Loop, s *Sync, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, loop: l, sync: s, logger: logger}
}

// MarkAsRead clears the unread counter of conversation id locally, then
// remotely, then marks every unread message from other participants read.
//
// If the conversation update fails the local change is rolled back,
// unless a newer snapshot has replaced it meanwhile, and a
// *ReadStateError is returned. Failed message patches are returned joined
// without rollback.
func (r *Reconciler) MarkAsRead(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoConversation
	}

	var (
		self  string
		prev  int64
		gen   uint64
		known bool
	)
	err := r.loop.Call(ctx, func() {
		self = r.sync.Self()
		if self == "" {
			return
		}
		prev, gen, known = r.sync.setUnread(id, 0)
	})
	if err != nil {
		return fmt.Errorf("mark conversation %s read: %w", id, err)
	}
	if self == "" {
		return ErrNotStarted
	}

	if _, err := r.store.Update(ctx, model.ConversationPath(id), docstore.Fields{"unreadCount": int64(0)}); err != nil {
		if known {
			rollback := func() {
				if !r.sync.restoreUnread(id, prev, gen) {
					r.logger.Debug("read state rollback skipped, newer snapshot applied", "conversation", id)
				}
			}
			if cerr := r.loop.Call(context.WithoutCancel(ctx), rollback); cerr != nil {
				r.logger.Warn("read state rollback failed", "conversation", id, "error", cerr)
			}
		}
		return &ReadStateError{ConversationID: id, Err: err}
	}

	q := docstore.From(model.MessagesOf(id)).Where("read", docstore.OpEqual, false)
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("list unread messages of %s: %w", id, err)
	}

	var errs []error
	for _, doc := range docs {
		if doc.Data.String("senderId") == self {
			continue
		}
		if _, err := r.store.Update(ctx, doc.Path, docstore.Fields{"read": true}); err != nil {
			errs = append(errs, fmt.Errorf("mark message %s read: %w", doc.ID, err))
		}
	}
	return errors.Join(errs...)
}
