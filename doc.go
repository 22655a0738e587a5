// Package authgate provides a session and credential lifecycle engine: JWT
// access tokens, rotating opaque refresh tokens, Redis-backed revocation, a
// passwordless one-time-code state machine, and a unified orchestrator that
// routes a credential payload to the matching sign-on method.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Identity, SessionTokens, AuthOutcome, etc.). All internal
// coordination — challenge persistence, session encoding, rate limiting,
// observer dispatch, code delivery — lives under internal/ and is never
// exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Return or log secret material: password hashes, code values, and
//     refresh secrets stay inside the engine and its stores.
//
// # Revocation contract
//
// Validate parses the access token and then consults the session store.
// Revocation is authoritative: after [Engine.Revoke] returns, every
// outstanding access token for that handle fails validation, regardless of
// its own expiry.
package authgate
