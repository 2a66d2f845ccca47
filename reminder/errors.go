package reminder

import "errors"

var (
	// ErrTimersNil is returned when a scheduler is constructed without a
	// timer store.
	ErrTimersNil = errors.New("timers cannot be nil")

	// ErrDependencyNil is returned when a fire handler is constructed with
	// a missing dependency.
	ErrDependencyNil = errors.New("fire handler dependency cannot be nil")
)
