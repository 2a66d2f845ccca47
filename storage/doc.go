// Package storage defines the persistence surface for events, channels,
// subscriptions, selectors and the delivery attempt log.
//
// The Store interface is the union of what the service facade writes and
// what the delivery, lifecycle and reminder packages read through their own
// consumer-side interfaces. Two implementations ship with the service:
// storage/memory for tests and single-process development, and
// storage/postgres for production, which also backs the runtime's durable
// queues.
//
// Stores enforce the relational invariants (uniqueness, referential
// integrity, the selector exactly-one-of rule) and report violations with
// the sentinel errors in this package; structural validation of individual
// values happens at the boundary before a write is attempted.
package storage
