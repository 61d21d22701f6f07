package docstore

import (
	"context"
	"reflect"
)

// Document is a stored document.
type Document struct {
	Path       string
	ID         string
	Data       Fields
	CreateTime int64 // Unix ms
	UpdateTime int64 // Unix ms
}

// WriteResult reports the server time a write was applied at.
// ServerTimestamp sentinels in the write resolved to UpdateTime.
type WriteResult struct {
	UpdateTime int64
}

// Precondition guards an Update.
type Precondition struct {
	updateTime int64
}

// LastUpdateTime makes an Update fail with ErrFailedPrecondition unless
// the document was last written at ms (its Document.UpdateTime).
func LastUpdateTime(ms int64) Precondition {
	return Precondition{updateTime: ms}
}

// CheckPreconditions returns ErrFailedPrecondition if prev does not
// satisfy every precondition. Stores call it inside their write.
func CheckPreconditions(prev *Document, preconds []Precondition) error {
	for _, p := range preconds {
		if prev.UpdateTime != p.updateTime {
			return ErrFailedPrecondition
		}
	}
	return nil
}

// Snapshot is one delivery of a subscription: the full, ordered result set
// of the query at some point in the store's serialised history.
//
// Err is set when the subscription hit a (possibly transient) failure;
// Docs is then nil and the subscription keeps trying to recover.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Listener receives snapshots for a subscription.
//
// Listeners for one subscription are called one at a time in the order the
// store serialised the changes. Listeners must not block and must not call
// back into the store synchronously; post the snapshot to a loop instead.
type Listener func(Snapshot)

// Unsubscribe stops a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the remote document store.
type Store interface {
	// Get reads one document. Returns ErrNotFound if absent.
	Get(ctx context.Context, path string) (Document, error)

	// Set creates or overwrites a document.
	Set(ctx context.Context, path string, data Fields) (WriteResult, error)

	// Create writes a new document. Returns ErrAlreadyExists if present.
	Create(ctx context.Context, path string, data Fields) (WriteResult, error)

	// Update merges fields (dotted paths allowed) into an existing document.
	// Returns ErrNotFound if absent, and ErrFailedPrecondition if a
	// precondition does not hold.
	Update(ctx context.Context, path string, data Fields, preconds ...Precondition) (WriteResult, error)

	// Delete removes a document. Deleting a missing document succeeds.
	Delete(ctx context.Context, path string) error

	// Add creates a document with a store-generated ID in collection.
	Add(ctx context.Context, collection string, data Fields) (string, WriteResult, error)

	// Query runs a one-shot query.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Subscribe registers listener for q. The current result set is
	// delivered first, then a new snapshot after every change to it.
	Subscribe(ctx context.Context, q Query, listener Listener) (Unsubscribe, error)
}

// SameDocs reports whether two result sets are identical, so unchanged
// results are not redelivered to listeners.
func SameDocs(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// CloneDocs deep-copies docs so callers cannot alias store state.
func CloneDocs(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		d.Data = d.Data.Clone()
		out[i] = d
	}
	return out
}
