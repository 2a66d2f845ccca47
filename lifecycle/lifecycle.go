package lifecycle

import (
	"github.com/google/uuid"
)

// KindEvent is the instance kind the orchestrator registers for.
const KindEvent = "event"

// Instance states. An event is created when its instance exists but the
// start signal has not been processed yet, active while notifications flow,
// and ended once cancelled or past its time window.
const (
	StateCreated = "created"
	StateActive  = "active"
	StateEnded   = "ended"
)

// Signal names understood by the orchestrator.
const (
	SignalSubscriptionAdded   = "subscription_added"
	SignalSubscriptionRemoved = "subscription_removed"
	SignalEventUpdated        = "event_updated"
	SignalEventCancelled      = "event_cancelled"
	SignalOrganizerNote       = "organizer_note"
	SignalEventElapsed        = "event_elapsed"
)

// namespace is the UUIDv5 namespace for instance and watch timer ids.
var namespace = uuid.MustParse("c3d94c9e-55a1-4b7a-8f12-6d2b9d3e7c05")

// InstanceID derives the deterministic orchestration instance id for an
// event, so repeated start attempts land on the same instance.
func InstanceID(eventID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("instance/"+eventID.String()))
}

// WatchID derives the deterministic id of the event's watch timer.
func WatchID(eventID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("watch/"+eventID.String()))
}

// Input is the instance input stored at start.
type Input struct {
	EventID uuid.UUID `json:"event_id"`
}

// SubscriptionChange is the payload of subscription_added and
// subscription_removed signals.
type SubscriptionChange struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

// Update is the payload of event_updated signals. StartChanged triggers
// reminder rescheduling; Changed lists the updated fields for the
// broadcast message.
type Update struct {
	StartChanged bool     `json:"start_changed"`
	Changed      []string `json:"changed,omitempty"`
}

// Cancellation is the payload of event_cancelled signals.
type Cancellation struct {
	Reason string `json:"reason,omitempty"`
}

// Note is the payload of organizer_note signals. When SubscriptionIDs is
// set the broadcast is narrowed to those subscriptions; ids that are not
// active subscriptions of the event are ignored.
type Note struct {
	Subject         string      `json:"subject"`
	Body            string      `json:"body"`
	SubscriptionIDs []uuid.UUID `json:"subscription_ids,omitempty"`
}

// WatchPayload is the payload of the watch timer that reports the event's
// window end.
type WatchPayload struct {
	EventID uuid.UUID `json:"event_id"`
}
