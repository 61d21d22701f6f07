// Package chat keeps a live, locally consistent view of the signed-in
// account's conversations and of the open conversation's messages.
//
// ARCHITECTURE:
//
// Sync subscribes to every conversation the account participates in,
// newest first. Each snapshot replaces the local list, recomputes the
// unread aggregate, shows local notifications for fresh activity and
// schedules the participant organisation backfill.
//
// Channel follows one selected conversation's messages and sends new
// ones. Reconciler marks a conversation read: local state first, then the
// remote writes, rolling the local change back if the conversation update
// fails.
//
// All local state is owned by a loop.Loop. Store listeners only post to
// the loop; writes provoked by a snapshot are deferred past the current
// reaction and are idempotent, so the listener that observes them
// converges instead of re-triggering forever.
package chat
