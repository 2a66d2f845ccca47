package soonish

import "errors"

var (
	// ErrDependencyNil is returned by New when a required dependency is
	// missing.
	ErrDependencyNil = errors.New("service dependency cannot be nil")

	// ErrEventEnded is returned for operations addressing an event whose
	// orchestration already ended.
	ErrEventEnded = errors.New("event has already ended")

	// ErrNoteIncomplete is returned when a manual notification is missing
	// its subject or body.
	ErrNoteIncomplete = errors.New("note subject and body are required")
)
