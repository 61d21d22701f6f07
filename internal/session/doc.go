// Package session keeps one canonical signed-in session per account.
//
// Registry writes this device's session record and heartbeats it.
// Arbitrator watches every session record of the account and applies the
// "newest login wins" rule:
//
//  1. Records belonging to this device are ignored.
//  2. If another record's lastActive is strictly greater than this device's
//     baseline (the server timestamp captured when our record was created,
//     never moved by heartbeats), this device has lost: the loss handler
//     runs once and later snapshots are ignored.
//  3. Otherwise every other record is stale and is deleted, outside the
//     current reaction and without surfacing failures.
//
// All records carry timestamps from the same server clock, so every device
// observes the same order and converges on the same winner regardless of
// local clock skew.
package session
