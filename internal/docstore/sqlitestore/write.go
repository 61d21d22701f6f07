package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/docstore"
)

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, path string, data docstore.Fields) (docstore.WriteResult, error) {
	return s.write(ctx, "set", path, data, func(prev *docstore.Document, data docstore.Fields, now int64) (docstore.Fields, error) {
		var prevData docstore.Fields
		if prev != nil {
			prevData = prev.Data
		}
		return docstore.ApplySet(prevData, data, now), nil
	})
}

// Create implements docstore.Store.
func (s *Store) Create(ctx context.Context, path string, data docstore.Fields) (docstore.WriteResult, error) {
	return s.write(ctx, "create", path, data, func(prev *docstore.Document, data docstore.Fields, now int64) (docstore.Fields, error) {
		if prev != nil {
			return nil, docstore.ErrAlreadyExists
		}
		return docstore.ApplySet(nil, data, now), nil
	})
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, path string, data docstore.Fields, preconds ...docstore.Precondition) (docstore.WriteResult, error) {
	return s.write(ctx, "update", path, data, func(prev *docstore.Document, data docstore.Fields, now int64) (docstore.Fields, error) {
		if prev == nil {
			return nil, docstore.ErrNotFound
		}
		if err := docstore.CheckPreconditions(prev, preconds); err != nil {
			return nil, err
		}
		return docstore.ApplyUpdate(prev.Data, data, now), nil
	})
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, data docstore.Fields) (string, docstore.WriteResult, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", docstore.WriteResult{}, docstore.WrapOp("add", collection, err)
	}
	id := s.newID()
	res, err := s.Create(ctx, docstore.Join(collection, id), data)
	return id, res, err
}

// Delete implements docstore.Store. Deleting a missing document succeeds
// and notifies nobody.
func (s *Store) Delete(ctx context.Context, path string) error {
	coll, id, err := docstore.SplitDocPath(path)
	if err != nil {
		return docstore.WrapOp("delete", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, coll, id)
	if err != nil {
		return docstore.WrapOp("delete", path, classify(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return docstore.WrapOp("delete", path, classify(err))
	}
	if n > 0 {
		s.notifyLocked(coll)
	}
	return nil
}

type applyFunc func(prev *docstore.Document, data docstore.Fields, now int64) (docstore.Fields, error)

// write runs one read-modify-write of a document in a transaction and then
// redelivers affected subscriptions.
func (s *Store) write(ctx context.Context, op, path string, data docstore.Fields, apply applyFunc) (docstore.WriteResult, error) {
	coll, id, err := docstore.SplitDocPath(path)
	if err != nil {
		return docstore.WriteResult{}, docstore.WrapOp(op, path, err)
	}
	data, err = docstore.NormalizeFields(data)
	if err != nil {
		return docstore.WriteResult{}, docstore.WrapOp(op, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.writeTx(ctx, coll, id, path, data, apply)
	if err != nil {
		return docstore.WriteResult{}, docstore.WrapOp(op, path, err)
	}

	s.notifyLocked(coll)
	return docstore.WriteResult{UpdateTime: now}, nil
}

func (s *Store) writeTx(ctx context.Context, coll, id, path string, data docstore.Fields, apply applyFunc) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback() // No-op if committed

	prev, err := readDocument(ctx, tx, coll, id)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return 0, err
	}

	now, err := s.serverTime(ctx, tx)
	if err != nil {
		return 0, err
	}

	next, err := apply(prev, data, now)
	if err != nil {
		return 0, err
	}
	body, err := marshalBody(next)
	if err != nil {
		return 0, err
	}

	if prev == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, body, create_time, update_time)
			VALUES (?, ?, ?, ?, ?)
		`, coll, id, body, now, now)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET body = ?, update_time = ?
			WHERE collection = ? AND id = ?
		`, body, now, coll, id)
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, classify(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", classify(err))
	}
	return now, nil
}

// serverTime issues the next server timestamp: the clock's Unix-ms time,
// bumped past the last issued value so timestamps are strictly increasing
// across every process sharing the database.
func (s *Store) serverTime(ctx context.Context, tx *sql.Tx) (int64, error) {
	var ts int64
	err := tx.QueryRowContext(ctx, `
		UPDATE server_clock SET last = MAX(last + 1, ?) WHERE id = 1
		RETURNING last
	`, clock.UnixMilli(s.clock)).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("server time: %w", classify(err))
	}
	return ts, nil
}

// classify maps driver errors onto the docstore taxonomy. Lock contention
// and a closed database are transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
		case sqlite3.ErrReadonly, sqlite3.ErrPerm, sqlite3.ErrAuth:
			return fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return err
}
