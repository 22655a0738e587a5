// Package middleware exposes an HTTP guard built on top of
// authgate.Engine validation.
//
// [Guard] reads the Authorization header, calls Engine.Validate, and injects
// the session view into the request context. Validation always consults the
// session store, so a revoked session is rejected immediately regardless of
// the access token's own expiry.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Validate.
package middleware
