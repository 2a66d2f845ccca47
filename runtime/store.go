package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists instances, signals and timers. Implementations must make
// CreateInstance atomic with the insertion of the start signal, assign
// monotonically increasing Seq values per instance in AppendSignal, and
// serve claims so that at most one signal per instance is processing at any
// time.
type Store interface {
	// CreateInstance inserts the instance together with its start signal in
	// one atomic step. Returns ErrInstanceExists when the id is taken.
	CreateInstance(ctx context.Context, inst Instance, start Signal) error

	// Instance returns the instance by id or ErrInstanceNotFound.
	Instance(ctx context.Context, id uuid.UUID) (*Instance, error)

	// UpdateInstanceState stores the state produced by a handler. A non-nil
	// endedAt moves the instance into its absorbing end state; passing nil
	// leaves an already set end timestamp untouched.
	UpdateInstanceState(ctx context.Context, id uuid.UUID, state string, endedAt *time.Time) error

	// AppendSignal enqueues a signal at the tail of the instance's queue,
	// assigning the next Seq. Returns ErrInstanceNotFound for unknown
	// instances.
	AppendSignal(ctx context.Context, sig Signal) error

	// ClaimSignal locks and returns the next eligible signal. A signal is
	// eligible when it is pending, its ScheduledAt has passed, no signal of
	// its instance is processing, and every lower-Seq signal of its
	// instance is completed or parked. Returns ErrNoSignalToClaim when
	// nothing qualifies.
	ClaimSignal(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Signal, error)

	// CompleteSignal marks a processing signal completed.
	CompleteSignal(ctx context.Context, id uuid.UUID) error

	// FailSignal records a failed attempt. The signal returns to pending
	// with a backoff applied to ScheduledAt, or parks once attempts reach
	// MaxAttempts.
	FailSignal(ctx context.Context, id uuid.UUID, errorMsg string) error

	// ParkSignal parks a processing signal immediately, skipping remaining
	// attempts.
	ParkSignal(ctx context.Context, id uuid.UUID, errorMsg string) error

	// Signals returns all signals of the instance in Seq order.
	Signals(ctx context.Context, instanceID uuid.UUID) ([]Signal, error)

	// UpsertTimer creates the timer or, when the id exists, replaces its
	// fire time and payload and returns it to pending.
	UpsertTimer(ctx context.Context, t Timer) error

	// CancelTimer removes the timer. Cancelling an unknown id is a no-op.
	CancelTimer(ctx context.Context, id uuid.UUID) error

	// Timers returns all live timers of the instance.
	Timers(ctx context.Context, instanceID uuid.UUID) ([]Timer, error)

	// ClaimTimer locks and returns the next due pending timer, or
	// ErrNoTimerToClaim.
	ClaimTimer(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Timer, error)

	// CompleteTimer marks a processing timer completed.
	CompleteTimer(ctx context.Context, id uuid.UUID) error

	// FailTimer records a failed attempt, returning the timer to pending
	// with backoff or parking it once attempts reach MaxAttempts.
	FailTimer(ctx context.Context, id uuid.UUID, errorMsg string) error

	// ParkTimer parks a processing timer immediately.
	ParkTimer(ctx context.Context, id uuid.UUID, errorMsg string) error

	// ExpireLocks returns items whose lock timed out to pending so another
	// worker can claim them. Reports the number of released items.
	ExpireLocks(ctx context.Context) (int, error)

	// RetireInstances removes instances that ended before the cutoff,
	// together with their signals and timers. Reports the number of
	// removed instances.
	RetireInstances(ctx context.Context, endedBefore time.Time) (int, error)
}
