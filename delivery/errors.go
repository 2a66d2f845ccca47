package delivery

import "errors"

var (
	// ErrTemporary classifies a delivery failure that may succeed on retry:
	// network errors, timeouts, 5xx responses, provider rate limits.
	// Transports wrap such failures with this sentinel.
	ErrTemporary = errors.New("temporary delivery failure")

	// ErrPermanent classifies a delivery failure that will not succeed on
	// retry: invalid address, revoked token, 4xx responses. Retrying is
	// skipped and the attempt is recorded as permanently failed.
	ErrPermanent = errors.New("permanent delivery failure")

	// ErrNoTransport is returned when a channel's kind has no registered
	// transport. Treated as permanent.
	ErrNoTransport = errors.New("no transport registered for channel kind")

	// ErrCircuitOpen marks attempts refused by an open circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
