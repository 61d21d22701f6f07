package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tandem/internal/docstore"
)

// FaultStore wraps a docstore.Store, records every call and fails the
// operations it has been told to fail.
//
// Thread-safety: safe for concurrent use.
type FaultStore struct {
	docstore.Store

	mu     sync.Mutex
	faults map[faultKey]error
	calls  []StoreCall
}

// StoreCall is one recorded store operation. Path is the collection for
// Add, Query and Subscribe.
type StoreCall struct {
	Op   string
	Path string
}

type faultKey struct {
	op   string
	path string
}

// NewFaultStore wraps inner.
func NewFaultStore(inner docstore.Store) *FaultStore {
	return &FaultStore{Store: inner, faults: make(map[faultKey]error)}
}

// Fail makes op on path return err until cleared. An empty path matches
// every path.
func (f *FaultStore) Fail(op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[faultKey{op, path}] = err
}

// Clear removes all injected faults.
func (f *FaultStore) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[faultKey]error)
}

// Calls returns the paths of recorded calls to op, in call order.
func (f *FaultStore) Calls(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c.Path)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (f *FaultStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FaultStore) record(op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, StoreCall{Op: op, Path: path})
	if err, ok := f.faults[faultKey{op, path}]; ok {
		return docstore.WrapOp(op, path, err)
	}
	if err, ok := f.faults[faultKey{op, ""}]; ok {
		return docstore.WrapOp(op, path, err)
	}
	return nil
}

// Get implements docstore.Store.
func (f *FaultStore) Get(ctx context.Context, path string) (docstore.Document, error) {
	if err := f.record("get", path); err != nil {
		return docstore.Document{}, err
	}
	return f.Store.Get(ctx, path)
}

// Set implements docstore.Store.
func (f *FaultStore) Set(ctx context.Context, path string, data docstore.Fields) (docstore.WriteResult, error) {
	if err := f.record("set", path); err != nil {
		return docstore.WriteResult{}, err
	}
	return f.Store.Set(ctx, path, data)
}

// Create implements docstore.Store.
func (f *FaultStore) Create(ctx context.Context, path string, data docstore.Fields) (docstore.WriteResult, error) {
	if err := f.record("create", path); err != nil {
		return docstore.WriteResult{}, err
	}
	return f.Store.Create(ctx, path, data)
}

// Update implements docstore.Store.
func (f *FaultStore) Update(ctx context.Context, path string, data docstore.Fields, preconds ...docstore.Precondition) (docstore.WriteResult, error) {
	if err := f.record("update", path); err != nil {
		return docstore.WriteResult{}, err
	}
	return f.Store.Update(ctx, path, data, preconds...)
}

// Delete implements docstore.Store.
func (f *FaultStore) Delete(ctx context.Context, path string) error {
	if err := f.record("delete", path); err != nil {
		return err
	}
	return f.Store.Delete(ctx, path)
}

// Add implements docstore.Store.
func (f *FaultStore) Add(ctx context.Context, collection string, data docstore.Fields) (string, docstore.WriteResult, error) {
	if err := f.record("add", collection); err != nil {
		return "", docstore.WriteResult{}, err
	}
	return f.Store.Add(ctx, collection, data)
}

// Query implements docstore.Store.
func (f *FaultStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := f.record("query", q.Collection); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, q)
}

// Subscribe implements docstore.Store.
func (f *FaultStore) Subscribe(ctx context.Context, q docstore.Query, listener docstore.Listener) (docstore.Unsubscribe, error) {
	if err := f.record("subscribe", q.Collection); err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, q, listener)
}
