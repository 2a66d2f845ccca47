package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/pkg/logger"
)

const (
	// DefaultGracePeriod is how long an ended instance keeps accepting
	// signals before it is retired.
	DefaultGracePeriod = 24 * time.Hour

	// DefaultMaxAttempts is the attempt budget for signals and timers.
	DefaultMaxAttempts int8 = 3
)

// Runtime is the entry point for starting instances, appending signals and
// managing timers. Handlers registered here are executed by workers polling
// the same store.
type Runtime struct {
	store       Store
	log         *slog.Logger
	grace       time.Duration
	maxAttempts int8

	mu       sync.RWMutex
	handlers map[string]InstanceHandler
	timers   map[string]TimerHandler
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used by the runtime and its workers.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runtime) {
		if log != nil {
			r.log = log
		}
	}
}

// WithGracePeriod overrides how long ended instances stay addressable.
func WithGracePeriod(grace time.Duration) Option {
	return func(r *Runtime) {
		if grace > 0 {
			r.grace = grace
		}
	}
}

// WithMaxAttempts overrides the attempt budget for signals and timers.
func WithMaxAttempts(attempts int8) Option {
	return func(r *Runtime) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// New creates a Runtime backed by the given store.
func New(store Store, opts ...Option) (*Runtime, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	r := &Runtime{
		store:       store,
		log:         slog.Default(),
		grace:       DefaultGracePeriod,
		maxAttempts: DefaultMaxAttempts,
		handlers:    make(map[string]InstanceHandler),
		timers:      make(map[string]TimerHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RegisterInstanceHandler registers the handler for its instance kind,
// replacing any previous registration.
func (r *Runtime) RegisterInstanceHandler(h InstanceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Kind()] = h
}

// RegisterTimerHandler registers the handler under its name, replacing any
// previous registration.
func (r *Runtime) RegisterTimerHandler(h TimerHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[h.Name()] = h
}

// GracePeriod returns how long ended instances stay addressable.
func (r *Runtime) GracePeriod() time.Duration {
	return r.grace
}

// Start creates an instance with the given deterministic id, born in the
// given state, and enqueues its start signal. Starting an id that already
// exists is a no-op, which makes Start safe to retry and safe to race.
func (r *Runtime) Start(ctx context.Context, kind string, id uuid.UUID, state string, input any) error {
	payload, err := marshalPayload(input)
	if err != nil {
		return fmt.Errorf("failed to marshal input for instance %s: %w", id, err)
	}

	now := time.Now()
	inst := Instance{
		ID:        id,
		Kind:      kind,
		State:     state,
		Input:     payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	start := Signal{
		ID:          uuid.New(),
		InstanceID:  id,
		Name:        StartSignalName,
		Status:      StatusPending,
		MaxAttempts: r.maxAttempts,
		ScheduledAt: now,
		CreatedAt:   now,
	}

	if err := r.store.CreateInstance(ctx, inst, start); err != nil {
		if errors.Is(err, ErrInstanceExists) {
			r.log.DebugContext(ctx, "instance already started",
				logger.InstanceID(id),
				logger.Kind(kind),
			)
			return nil
		}
		return fmt.Errorf("failed to start instance %s: %w", id, err)
	}
	return nil
}

// Signal appends a named signal to the instance's queue. Signals sent to an
// ended instance are accepted during the grace period so late senders do
// not error, and are rejected with ErrInstanceRetired afterwards.
func (r *Runtime) Signal(ctx context.Context, instanceID uuid.UUID, name string, payload any) error {
	inst, err := r.store.Instance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Retired(r.grace, time.Now()) {
		return fmt.Errorf("signal %q for instance %s: %w", name, instanceID, ErrInstanceRetired)
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for signal %q: %w", name, err)
	}

	now := time.Now()
	sig := Signal{
		ID:          uuid.New(),
		InstanceID:  instanceID,
		Name:        name,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: r.maxAttempts,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	if err := r.store.AppendSignal(ctx, sig); err != nil {
		return fmt.Errorf("failed to append signal %q to instance %s: %w", name, instanceID, err)
	}
	return nil
}

// Describe returns the instance by id.
func (r *Runtime) Describe(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return r.store.Instance(ctx, id)
}

// Signals returns the instance's signals in processing order.
func (r *Runtime) Signals(ctx context.Context, instanceID uuid.UUID) ([]Signal, error) {
	return r.store.Signals(ctx, instanceID)
}

// UpsertTimer schedules a timer addressed by id, replacing the fire time
// and payload of an existing registration with the same id.
func (r *Runtime) UpsertTimer(ctx context.Context, instanceID uuid.UUID, id uuid.UUID, handler string, fireAt time.Time, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for timer %s: %w", id, err)
	}

	now := time.Now()
	t := Timer{
		ID:          id,
		InstanceID:  instanceID,
		Handler:     handler,
		FireAt:      fireAt,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: r.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.UpsertTimer(ctx, t); err != nil {
		return fmt.Errorf("failed to upsert timer %s: %w", id, err)
	}
	return nil
}

// CancelTimer removes the timer. Cancelling a timer that already fired or
// never existed is a no-op.
func (r *Runtime) CancelTimer(ctx context.Context, id uuid.UUID) error {
	return r.store.CancelTimer(ctx, id)
}

// Timers returns the instance's live timers.
func (r *Runtime) Timers(ctx context.Context, instanceID uuid.UUID) ([]Timer, error) {
	return r.store.Timers(ctx, instanceID)
}

func (r *Runtime) instanceHandler(kind string) (InstanceHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

func (r *Runtime) timerHandler(name string) (TimerHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.timers[name]
	return h, ok
}

func (r *Runtime) handlerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers) + len(r.timers)
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
