package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
)

type (
	// Events persists the event aggregate.
	Events interface {
		// CreateEvent inserts a new event or returns ErrEventExists.
		CreateEvent(ctx context.Context, evt event.Event) error

		// UpdateEvent replaces the stored event's mutable fields.
		UpdateEvent(ctx context.Context, evt event.Event) error

		// Event returns the event by id or ErrEventNotFound.
		Event(ctx context.Context, id uuid.UUID) (event.Event, error)

		// EventsByOrganizer lists an organizer's events, newest first.
		EventsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]event.Event, error)
	}

	// Channels persists user delivery channels. At most one active channel
	// per (user, target, tag); deactivation keeps the row for attempt
	// history.
	Channels interface {
		CreateChannel(ctx context.Context, ch event.Channel) error
		Channel(ctx context.Context, id uuid.UUID) (event.Channel, error)

		// ChannelsForUser returns the user's channels including deactivated
		// ones; resolution classifies inactive references as gaps.
		ChannelsForUser(ctx context.Context, userID uuid.UUID) ([]event.Channel, error)

		// DeactivateChannel marks the channel inactive. Deactivating an
		// already inactive channel is a no-op.
		DeactivateChannel(ctx context.Context, id uuid.UUID) error
	}

	// Subscriptions persists event subscriptions. At most one active
	// subscription per (event, user).
	Subscriptions interface {
		CreateSubscription(ctx context.Context, sub event.Subscription) error
		Subscription(ctx context.Context, id uuid.UUID) (event.Subscription, error)
		ActiveSubscriptions(ctx context.Context, eventID uuid.UUID) ([]event.Subscription, error)

		// DeactivateSubscription marks the subscription inactive. Already
		// inactive is a no-op.
		DeactivateSubscription(ctx context.Context, id uuid.UUID) error
	}

	// Selectors persists subscription routing rules. No duplicate
	// (subscription, channel) or (subscription, folded tag) pairs.
	Selectors interface {
		AddSelector(ctx context.Context, sel event.Selector) error
		RemoveSelector(ctx context.Context, id uuid.UUID) error
		SelectorsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]event.Selector, error)
	}

	// Attempts persists the delivery attempt log, the source of truth for
	// "what was delivered" queries.
	Attempts interface {
		RecordAttempt(ctx context.Context, a delivery.Attempt) error

		// AttemptsForEvent returns the event's attempts in chronological
		// order.
		AttemptsForEvent(ctx context.Context, eventID uuid.UUID) ([]delivery.Attempt, error)
	}

	// Store is the full persistence surface. Implementations satisfy
	// delivery.Directory, delivery.Recorder, lifecycle.Directory and
	// reminder.Directory through the methods above.
	Store interface {
		Events
		Channels
		Subscriptions
		Selectors
		Attempts
	}
)
