package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a scheduled occurrence users can subscribe to. The descriptive
// fields and the window may change after creation; subscribers are notified
// of changes through the lifecycle orchestrator.
type Event struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID
	Title       string
	Description string
	StartAt     time.Time
	EndAt       *time.Time // nil for point-in-time events
	Public      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// End returns the end of the event's window. Point-in-time events end at
// their start.
func (e Event) End() time.Time {
	if e.EndAt != nil {
		return *e.EndAt
	}
	return e.StartAt
}

// Elapsed reports whether the event's window has passed.
func (e Event) Elapsed(now time.Time) bool {
	return now.After(e.End())
}

// Validate checks structural invariants before persistence.
func (e Event) Validate() error {
	if e.Title == "" {
		return ErrTitleRequired
	}
	if e.StartAt.IsZero() {
		return ErrStartRequired
	}
	if e.EndAt != nil && e.EndAt.Before(e.StartAt) {
		return ErrEndBeforeStart
	}
	return nil
}
