// Package delivery implements notification fan-out: resolving a
// subscription's selectors to concrete channels, dispatching to per-kind
// transports with retries and circuit breaking, and recording every attempt
// outcome.
//
// Fan-out never aborts on a single recipient's failure. Each channel attempt
// lands in exactly one terminal outcome (sent, failed, permanently_failed,
// pending, skipped_event_ended) and the aggregate Report preserves the full
// multiset of outcomes. An error is returned only when the audience itself
// cannot be read.
//
// Selector resolution is forgiving: a selector pointing at a missing or
// deactivated channel produces a recorded Gap, not an error, and the
// remaining channels still receive the notification. A subscription whose
// selectors resolve to nothing gets a single pending attempt so the report
// shows the recipient was considered.
package delivery
