package reminder

import (
	"time"

	"github.com/google/uuid"
)

// HandlerName is the timer handler reminder registrations fire through.
const HandlerName = "reminder.fire"

// namespace is the UUIDv5 namespace for registration ids. It never changes;
// determinism across processes and restarts depends on it.
var namespace = uuid.MustParse("8f1b5f6e-2f3a-4bfb-9a57-1f0d6c1a9f42")

// RegistrationID derives the deterministic timer id for one reminder: same
// event, subscription and offset always yield the same id.
func RegistrationID(eventID, subscriptionID uuid.UUID, offset time.Duration) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(eventID.String()+"/"+subscriptionID.String()+"/"+offset.String()))
}

// Firing is the timer payload carried from registration to fire time. The
// offset is kept so rescheduling can recompute fire times from the
// registrations that exist, and so the rendered message can say how far
// ahead of start it fired.
type Firing struct {
	EventID        uuid.UUID     `json:"event_id"`
	SubscriptionID uuid.UUID     `json:"subscription_id"`
	Offset         time.Duration `json:"offset"`
}
