package event

import "errors"

var (
	// Event validation errors
	ErrTitleRequired  = errors.New("event title is required")
	ErrStartRequired  = errors.New("event start time is required")
	ErrEndBeforeStart = errors.New("event end time is before start time")

	// Channel validation errors
	ErrUnknownChannelKind = errors.New("unknown channel kind")
	ErrEmptyTarget        = errors.New("channel delivery target is empty")

	// Subscription validation errors
	ErrInvalidOffset = errors.New("reminder offset must be positive")

	// Selector validation errors
	ErrEmptySelector     = errors.New("selector must reference a channel or a tag")
	ErrAmbiguousSelector = errors.New("selector must not reference both a channel and a tag")
)
