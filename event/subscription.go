package event

import (
	"time"

	"github.com/google/uuid"
)

// DefaultOffsets are the reminder lead times applied when a subscription does
// not pick its own.
var DefaultOffsets = []time.Duration{24 * time.Hour, time.Hour}

// Subscription ties a user to an event. Reminders fire Offsets before the
// event's start; notifications route through the subscription's selectors.
type Subscription struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	UserID        uuid.UUID
	Active        bool
	Offsets       []time.Duration
	CreatedAt     time.Time
	DeactivatedAt *time.Time
}

// ReminderOffsets returns the subscription's reminder lead times, falling
// back to DefaultOffsets when none were chosen.
func (s Subscription) ReminderOffsets() []time.Duration {
	if len(s.Offsets) == 0 {
		return DefaultOffsets
	}
	return s.Offsets
}

// Validate checks structural invariants before persistence. Offsets are
// lead times before the event start, so they must be positive.
func (s Subscription) Validate() error {
	for _, off := range s.Offsets {
		if off <= 0 {
			return ErrInvalidOffset
		}
	}
	return nil
}
