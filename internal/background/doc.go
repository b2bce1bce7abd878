// Package background runs best-effort work that a request spawns but must not wait for.
//
// Login uses it for legacy credential upgrades, last-login stamps and audit
// writes. Submit is non-blocking; a full buffer drops the job with a warning
// instead of slowing the caller. Jobs run on a context detached from the
// request with their own timeout, so a client disconnecting does not cancel
// an upgrade that is already under way.
//
// Keyed jobs are deduplicated through internal/dedupe: while an upgrade for
// admin_users:42 is pending or running, further submissions with that key are
// skipped. Failed or panicking jobs release their key at once.
package background
