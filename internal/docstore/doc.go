// Package docstore defines the remote document store tandem synchronises
// against, plus an in-memory implementation.
//
// The store is organised as named collections of documents; a document may
// own subcollections (e.g. conversations/{id}/messages). Paths alternate
// collection and document segments:
//
//	conversations              collection
//	conversations/c1           document
//	conversations/c1/messages  subcollection
//
// # Capabilities
//
// The interface is deliberately narrow. It offers exactly what the sync
// layer needs from a hosted document database:
//   - equality and array-contains filters, one order-by, limit
//   - atomic single-document set, create, update (dotted field paths), delete
//   - the ServerTimestamp and Increment sentinels, resolved by the store
//   - push subscriptions delivering the full result set on every change
//
// There are no cross-document transactions. Multi-step invariants are kept
// by idempotent re-application, not atomicity.
//
// # Values
//
// Field values are restricted to string, int64, bool, []any and
// map[string]any (and nil). Floats are rejected so documents survive a JSON
// round trip without precision loss. Timestamps are int64 Unix milliseconds.
package docstore
