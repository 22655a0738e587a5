// Package internal contains helper utilities that are intentionally private
// to authgate, including secure random generation, refresh-token encoding,
// and one-time-code hashing.
//
// # Sub-packages
//
//   - delivery — async out-of-band code dispatch with bounded backoff
//   - observer — async event dispatch (Dispatcher + Sink implementations)
//   - rate — Redis-backed rate limit primitives for the passwordless surface
//   - stores — the Redis-backed one-time-code challenge store
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
