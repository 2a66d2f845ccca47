package delivery

import (
	"context"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
)

// Directory provides the reads fan-out needs. Fresh state is read at
// delivery time, never snapshotted, so a channel deactivated a second before
// a reminder fires is excluded.
type Directory interface {
	Event(ctx context.Context, id uuid.UUID) (event.Event, error)
	Subscription(ctx context.Context, id uuid.UUID) (event.Subscription, error)
	ActiveSubscriptions(ctx context.Context, eventID uuid.UUID) ([]event.Subscription, error)
	SelectorsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]event.Selector, error)
	// ChannelsForUser returns all channels including deactivated ones;
	// resolution classifies inactive references as gaps.
	ChannelsForUser(ctx context.Context, userID uuid.UUID) ([]event.Channel, error)
}

// Recorder persists delivery attempt outcomes. Recording failures are logged
// and never block delivery to other recipients.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}
