// Package delivery hands one-time codes to the caller's out-of-band
// transport. Dispatch is fire-and-forget from the engine's perspective:
// sends run on their own goroutine with bounded fibonacci backoff, and a
// final failure is logged, never surfaced to the request that created the
// code.
package delivery
