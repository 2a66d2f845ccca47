package runtime

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing status of a signal or timer.
type Status string

const (
	// StatusPending marks an item waiting to be claimed by a worker.
	StatusPending Status = "pending"
	// StatusProcessing marks an item currently locked by a worker.
	StatusProcessing Status = "processing"
	// StatusCompleted marks an item whose handler finished successfully.
	StatusCompleted Status = "completed"
	// StatusParked marks an item that exhausted its attempts. Parked items
	// step out of their instance's ordering and stay visible for inspection.
	StatusParked Status = "parked"
)

// StartSignalName is the synthetic signal appended when an instance is
// created. It travels through the same ordered pipeline as every other
// signal, so instance creation and the first handler invocation cannot
// race each other.
const StartSignalName = "__start"

// Instance is one durable orchestration, addressed by a deterministic id.
type Instance struct {
	ID        uuid.UUID  `json:"id"`
	Kind      string     `json:"kind"`
	State     string     `json:"state"`
	Input     []byte     `json:"input,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Ended reports whether the instance reached its absorbing end state.
func (i Instance) Ended() bool {
	return i.EndedAt != nil
}

// Retired reports whether the instance ended longer than grace ago and is
// due for removal by the janitor.
func (i Instance) Retired(grace time.Duration, now time.Time) bool {
	return i.EndedAt != nil && now.Sub(*i.EndedAt) > grace
}

// Signal is one unit of ordered work for an instance. Seq fixes the
// processing order within the instance; signals of different instances are
// independent.
type Signal struct {
	ID          uuid.UUID  `json:"id"`
	InstanceID  uuid.UUID  `json:"instance_id"`
	Seq         int64      `json:"seq"`
	Name        string     `json:"name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      Status     `json:"status"`
	Attempts    int8       `json:"attempts"`
	MaxAttempts int8       `json:"max_attempts"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Timer is a durable one-shot timer. The id is chosen by the caller, so
// registering the same id again reschedules the existing timer instead of
// creating a second one.
type Timer struct {
	ID          uuid.UUID  `json:"id"`
	InstanceID  uuid.UUID  `json:"instance_id"`
	Handler     string     `json:"handler"`
	FireAt      time.Time  `json:"fire_at"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      Status     `json:"status"`
	Attempts    int8       `json:"attempts"`
	MaxAttempts int8       `json:"max_attempts"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Due reports whether the timer should fire at now.
func (t Timer) Due(now time.Time) bool {
	return !t.FireAt.After(now)
}
