// Package session provides Redis-backed session persistence and compact
// binary session encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact versioned binary format. The
// encoder is append-only: new versions add fields but never reinterpret old
// ones.
//
// # Rotation
//
// Refresh rotation is a WATCH/MULTI optimistic transaction over the single
// session record: the provided refresh hash is compared against the stored
// one and replaced in the same transaction. Two concurrent rotations with the
// same token resolve to exactly one winner; the loser observes a hash
// mismatch, which destroys the session family.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT interpret JWT tokens or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authgate or jwt (no upward imports).
//   - Store clear token material in [Session] fields (hashes only).
package session
