package sqlitestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/tandem/internal/docstore"
)

// subscription is one registered query and the last result delivered.
type subscription struct {
	q        docstore.Query
	listener docstore.Listener
	last     []docstore.Document
	failed   bool // last refresh delivered an error
}

// Subscribe implements docstore.Store. The initial snapshot (or error) is
// delivered before Subscribe returns.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, listener docstore.Listener) (docstore.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, docstore.WrapOp("subscribe", q.Collection, err)
	}
	q, err := q.Validate()
	if err != nil {
		return nil, docstore.WrapOp("subscribe", q.Collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	sub := &subscription{q: q, listener: listener, failed: true}
	s.subs[id] = sub
	s.refreshLocked(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}, nil
}

// Poll checks whether another process has committed since the last check
// and, if so, re-runs every subscription. Called periodically by the
// background poller; exported so callers can force a check.
func (s *Store) Poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return fmt.Errorf("poll data_version: %w", classify(err))
	}
	if version == s.dataVersion {
		return nil
	}
	s.dataVersion = version

	for _, id := range s.subIDsLocked("") {
		s.refreshLocked(s.subs[id])
	}
	return nil
}

func (s *Store) pollLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Poll(context.Background()); err != nil {
				s.logger.Warn("sqlitestore poll failed", "error", err)
			}
		}
	}
}

// notifyLocked re-runs the subscriptions on coll after a local write.
func (s *Store) notifyLocked(coll string) {
	for _, id := range s.subIDsLocked(coll) {
		s.refreshLocked(s.subs[id])
	}
}

// subIDsLocked returns subscription ids on coll ("" for all) in
// registration order.
func (s *Store) subIDsLocked(coll string) []int {
	ids := make([]int, 0, len(s.subs))
	for id, sub := range s.subs {
		if coll == "" || sub.q.Collection == coll {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// refreshLocked re-runs sub's query and delivers the result if it differs
// from the last delivery. A failed query is delivered as Snapshot.Err; the
// next successful run is always delivered.
func (s *Store) refreshLocked(sub *subscription) {
	docs, err := runQuery(context.Background(), s.db, sub.q)
	if err != nil {
		s.logger.Debug("subscription refresh failed", "collection", sub.q.Collection, "error", err)
		sub.last = nil
		sub.failed = true
		sub.listener(docstore.Snapshot{Err: docstore.WrapOp("subscribe", sub.q.Collection, err)})
		return
	}
	if !sub.failed && docstore.SameDocs(docs, sub.last) {
		return
	}
	sub.last = docs
	sub.failed = false
	sub.listener(docstore.Snapshot{Docs: docstore.CloneDocs(docs)})
}
