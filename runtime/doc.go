// Package runtime is the durable execution substrate for per-event
// orchestration. It persists orchestration instances, their ordered signal
// queues and their durable timers, and runs polling workers that claim work
// items, execute registered handlers, and retry failures with backoff.
//
// # Model
//
// An Instance is one long-lived orchestration, addressed by a deterministic
// id so a second start attempt lands on the existing instance instead of
// spawning a duplicate. Signals appended to an instance are processed
// strictly in order: at most one signal per instance is in flight, and a
// signal only becomes claimable once every earlier signal of that instance
// reached a terminal status. Timers are addressed by caller-chosen ids,
// which makes registration idempotent: upserting the same id reschedules
// instead of duplicating.
//
// # Reliability
//
// Claims take a lock with a timeout; the janitor returns items abandoned by
// dead workers to pending, so every signal and timer is executed at least
// once and handlers must tolerate redelivery. A signal that exhausts its
// attempt budget is parked rather than dropped: it steps out of the
// instance's ordering and stays queryable for inspection, and the instance
// keeps processing younger signals.
//
// Ended instances remain addressable for a grace period, then the janitor
// retires them together with their signals and timers.
package runtime
