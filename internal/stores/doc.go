// Package stores provides the Redis-backed, short-lived record store for
// passwordless one-time-code challenges.
//
// # Design
//
// Each challenge persists as a versioned, binary-encoded record in Redis with
// a TTL matching its expiry. Mutation operations (Consume, Resend) use
// WATCH/MULTI optimistic transactions with automatic retry on contention, so
// concurrent calls against the same challenge resolve to exactly one winner.
// Records are single-use: a successful consume deletes the record, and the
// attempt counter enforces a hard ceiling against code guessing. Secret
// comparisons use constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for challenge
// records. It does NOT generate codes, enforce creation rate limits, or make
// authentication decisions — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
