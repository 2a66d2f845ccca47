// Package postgres implements storage.Store and runtime.Store on PostgreSQL.
//
// Domain records and the runtime's instances, signal queues and timers share
// one database so a deployment needs a single DSN. Schema migrations live in
// the migrations directory and are applied with pkg/pg.Migrate at startup.
//
// Channel targets are secrets: rows hold an AES-256-GCM ciphertext bound to
// the owning user through a per-user scope key, plus an owner-salted digest
// that stands in for the plaintext in the uniqueness index. The plaintext
// never reaches the database.
//
// Queue claims use FOR UPDATE SKIP LOCKED so any number of workers can poll
// the same tables without handing out a signal or timer twice. Signal claims
// additionally enforce per-instance ordering: a signal is only handed out
// when no older signal of its instance is still pending or processing.
package postgres
