package runtime

import (
	"context"
	"encoding/json"
)

// Result is what an instance handler returns for a processed signal.
type Result struct {
	// State is the instance state after the signal, persisted verbatim.
	State string
	// End moves the instance into its absorbing end state. Once ended the
	// instance keeps accepting signals for the grace period, but handlers
	// are expected to treat them as no-ops.
	End bool
}

type (
	// InstanceHandler processes the ordered signals of all instances of one
	// kind. Signals are redelivered after crashes, so handlers must be
	// idempotent.
	InstanceHandler interface {
		Kind() string
		HandleSignal(ctx context.Context, inst Instance, sig Signal) (Result, error)
	}

	// TimerHandler processes fired timers registered under its name.
	TimerHandler interface {
		Name() string
		HandleTimer(ctx context.Context, t Timer) error
	}

	// TimerHandlerFunc is the typed callback wrapped by NewTimerHandler.
	TimerHandlerFunc[T any] func(ctx context.Context, t Timer, payload T) error
)

// NewTimerHandler adapts a typed callback into a TimerHandler, unmarshaling
// the timer payload into T before each invocation.
func NewTimerHandler[T any](name string, handler TimerHandlerFunc[T]) TimerHandler {
	return &typedTimerHandler[T]{name: name, handler: handler}
}

type typedTimerHandler[T any] struct {
	name    string
	handler TimerHandlerFunc[T]
}

func (h *typedTimerHandler[T]) Name() string {
	return h.name
}

func (h *typedTimerHandler[T]) HandleTimer(ctx context.Context, t Timer) error {
	var payload T
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &payload); err != nil {
			return err
		}
	}
	return h.handler(ctx, t, payload)
}
