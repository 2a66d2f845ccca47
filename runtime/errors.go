package runtime

import "errors"

var (
	// ErrStoreNil is returned when a runtime or worker is constructed
	// without a store.
	ErrStoreNil = errors.New("store cannot be nil")

	// ErrRuntimeNil is returned when a worker or janitor is constructed
	// without a runtime.
	ErrRuntimeNil = errors.New("runtime cannot be nil")

	// ErrNoHandlers is returned when a worker starts with no instance or
	// timer handlers registered.
	ErrNoHandlers = errors.New("no handlers registered")

	// ErrHandlerNotFound is returned when a claimed item references a kind
	// or handler name with no registration.
	ErrHandlerNotFound = errors.New("no handler registered")

	// ErrInstanceExists is returned by CreateInstance when the id is
	// already taken. Start treats it as a successful no-op.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrInstanceNotFound is returned when the addressed instance does not
	// exist, either because it was never started or because the janitor
	// retired it.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceRetired is returned by Signal when the instance ended and
	// its grace period elapsed, even if the janitor has not swept it yet.
	ErrInstanceRetired = errors.New("instance retired")

	// ErrNoSignalToClaim is returned by ClaimSignal when no signal is
	// eligible for processing.
	ErrNoSignalToClaim = errors.New("no signal available to claim")

	// ErrNoTimerToClaim is returned by ClaimTimer when no timer is due.
	ErrNoTimerToClaim = errors.New("no timer available to claim")

	// ErrSignalNotFound is returned when the addressed signal does not
	// exist.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrTimerNotFound is returned when the addressed timer does not exist.
	// Cancellation of a missing timer is a no-op and does not use it.
	ErrTimerNotFound = errors.New("timer not found")

	// ErrNotProcessing is returned by complete and fail operations when the
	// item is not locked in processing state, typically because it was
	// rescheduled or cancelled while a handler was running.
	ErrNotProcessing = errors.New("item is not processing")
)
