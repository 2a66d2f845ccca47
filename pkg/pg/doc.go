// Package pg wires up the PostgreSQL side of the service: a pgxpool
// connection with startup retries, goose-driven schema migrations routed
// through the application logger, a health check closure, and error
// predicates (not-found, duplicate key, foreign key) that keep SQLSTATE
// handling out of the storage layer.
package pg
