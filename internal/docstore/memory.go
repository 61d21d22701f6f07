package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/tandem/internal/clock"
)

// Memory is an in-process Store.
//
// All writes are serialised by one mutex; subscription listeners are
// invoked while it is held, which is what gives each subscription an
// ordered stream of snapshots. Server timestamps are strictly increasing
// across writes, so every client observes the same total order of records.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	newID   func() string
	colls   map[string]map[string]Document // collection -> id -> doc
	subs    map[int]*memSub
	nextSub int
	lastTS  int64
}

type memSub struct {
	q        Query
	listener Listener
	last     []Document
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the clock used to resolve ServerTimestamp.
func WithClock(c clock.Clock) MemoryOption {
	return func(m *Memory) {
		m.clock = c
	}
}

// WithIDGenerator sets the ID generator used by Add.
func WithIDGenerator(gen func() string) MemoryOption {
	return func(m *Memory) {
		m.newID = gen
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock: clock.Real{},
		newID: func() string { return uuid.NewString() },
		colls: make(map[string]map[string]Document),
		subs:  make(map[int]*memSub),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, WrapOp("get", path, err)
	}
	coll, id, err := SplitDocPath(path)
	if err != nil {
		return Document{}, WrapOp("get", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.colls[coll][id]
	if !ok {
		return Document{}, WrapOp("get", path, ErrNotFound)
	}
	doc.Data = doc.Data.Clone()
	return doc, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, path string, data Fields) (WriteResult, error) {
	return m.write(ctx, "set", path, data, func(prev *Document, data Fields, now int64) (Fields, error) {
		var prevData Fields
		if prev != nil {
			prevData = prev.Data
		}
		return ApplySet(prevData, data, now), nil
	})
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, path string, data Fields) (WriteResult, error) {
	return m.write(ctx, "create", path, data, func(prev *Document, data Fields, now int64) (Fields, error) {
		if prev != nil {
			return nil, ErrAlreadyExists
		}
		return ApplySet(nil, data, now), nil
	})
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, path string, data Fields, preconds ...Precondition) (WriteResult, error) {
	return m.write(ctx, "update", path, data, func(prev *Document, data Fields, now int64) (Fields, error) {
		if prev == nil {
			return nil, ErrNotFound
		}
		if err := CheckPreconditions(prev, preconds); err != nil {
			return nil, err
		}
		return ApplyUpdate(prev.Data, data, now), nil
	})
}

// Add implements Store.
func (m *Memory) Add(ctx context.Context, collection string, data Fields) (string, WriteResult, error) {
	if err := ValidateCollection(collection); err != nil {
		return "", WriteResult{}, WrapOp("add", collection, err)
	}
	id := m.newID()
	res, err := m.Create(ctx, Join(collection, id), data)
	return id, res, err
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return WrapOp("delete", path, err)
	}
	coll, id, err := SplitDocPath(path)
	if err != nil {
		return WrapOp("delete", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.colls[coll][id]; !ok {
		return nil
	}
	delete(m.colls[coll], id)
	m.notifyLocked(coll)
	return nil
}

// Query implements Store.
func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapOp("query", q.Collection, err)
	}
	q, err := q.Validate()
	if err != nil {
		return nil, WrapOp("query", q.Collection, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return CloneDocs(q.Apply(m.docsLocked(q.Collection))), nil
}

// Subscribe implements Store. The initial snapshot is delivered before
// Subscribe returns.
func (m *Memory) Subscribe(ctx context.Context, q Query, listener Listener) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapOp("subscribe", q.Collection, err)
	}
	q, err := q.Validate()
	if err != nil {
		return nil, WrapOp("subscribe", q.Collection, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	sub := &memSub{q: q, listener: listener}
	m.subs[id] = sub

	sub.last = q.Apply(m.docsLocked(q.Collection))
	listener(Snapshot{Docs: CloneDocs(sub.last)})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}, nil
}

type applyFunc func(prev *Document, data Fields, now int64) (Fields, error)

func (m *Memory) write(ctx context.Context, op, path string, data Fields, apply applyFunc) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, WrapOp(op, path, err)
	}
	coll, id, err := SplitDocPath(path)
	if err != nil {
		return WriteResult{}, WrapOp(op, path, err)
	}
	data, err = NormalizeFields(data)
	if err != nil {
		return WriteResult{}, WrapOp(op, path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *Document
	if existing, ok := m.colls[coll][id]; ok {
		prev = &existing
	}

	now := m.serverTimeLocked()
	next, err := apply(prev, data, now)
	if err != nil {
		return WriteResult{}, WrapOp(op, path, err)
	}

	doc := Document{Path: path, ID: id, Data: next, CreateTime: now, UpdateTime: now}
	if prev != nil {
		doc.CreateTime = prev.CreateTime
	}
	if m.colls[coll] == nil {
		m.colls[coll] = make(map[string]Document)
	}
	m.colls[coll][id] = doc
	m.notifyLocked(coll)

	return WriteResult{UpdateTime: now}, nil
}

// serverTimeLocked returns a strictly increasing Unix-ms timestamp.
func (m *Memory) serverTimeLocked() int64 {
	now := clock.UnixMilli(m.clock)
	if now <= m.lastTS {
		now = m.lastTS + 1
	}
	m.lastTS = now
	return now
}

func (m *Memory) docsLocked(coll string) []Document {
	docs := make([]Document, 0, len(m.colls[coll]))
	for _, d := range m.colls[coll] {
		docs = append(docs, d)
	}
	return docs
}

// notifyLocked redelivers every subscription on coll whose result changed.
// Subscriptions are visited in registration order.
func (m *Memory) notifyLocked(coll string) {
	ids := make([]int, 0, len(m.subs))
	for id, sub := range m.subs {
		if sub.q.Collection == coll {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Ints(ids)

	docs := m.docsLocked(coll)
	for _, id := range ids {
		sub := m.subs[id]
		next := sub.q.Apply(docs)
		if SameDocs(next, sub.last) {
			continue
		}
		sub.last = next
		sub.listener(Snapshot{Docs: CloneDocs(next)})
	}
}

// Len returns the number of documents in collection. Test helper.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.colls[collection])
}

// String implements fmt.Stringer for debugging.
func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.colls {
		n += len(c)
	}
	return fmt.Sprintf("docstore.Memory{collections: %d, documents: %d, subscriptions: %d}", len(m.colls), n, len(m.subs))
}
