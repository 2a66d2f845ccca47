package delivery

import "github.com/google/uuid"

// Message kinds name the notice that produced a message. They travel into
// attempt records so reports can break outcomes down by notice.
const (
	KindEventCreated   = "event_created"
	KindWelcome        = "subscription_welcome"
	KindEventUpdated   = "event_updated"
	KindOrganizerNote  = "organizer_note"
	KindEventCancelled = "event_cancelled"
	KindReminder       = "reminder"
)

// Message is a rendered notification ready for dispatch.
type Message struct {
	EventID uuid.UUID
	Kind    string
	Subject string
	Body    string
}
