// Package rate provides Redis-backed rate limit primitives for the
// passwordless surface: code-creation budgets per contact and resend
// cooldowns per device.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - agl:c: — code creation per contact
//   - agl:r: — resend cooldown per device
//
// # What this package must NOT do
//
//   - Decide which operations are throttled (the Engine does).
//   - Be imported outside the authgate module.
package rate
