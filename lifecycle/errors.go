package lifecycle

import "errors"

var (
	// ErrDependencyNil is returned when an orchestrator or watch handler is
	// constructed with a missing dependency.
	ErrDependencyNil = errors.New("lifecycle dependency cannot be nil")

	// ErrBadPayload is returned when a signal payload cannot be decoded.
	ErrBadPayload = errors.New("malformed signal payload")
)
