package event

import (
	"time"

	"github.com/google/uuid"
)

// Selector routes a subscription's notifications. Exactly one of ChannelID
// and Tag is set: a channel selector pins a specific channel, a tag selector
// addresses every active channel of the user carrying that tag at delivery
// time.
type Selector struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	ChannelID      *uuid.UUID
	Tag            string
	CreatedAt      time.Time
}

// ChannelSelector builds a selector pinning a specific channel.
func ChannelSelector(subscriptionID, channelID uuid.UUID) Selector {
	return Selector{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		ChannelID:      &channelID,
		CreatedAt:      time.Now(),
	}
}

// TagSelector builds a selector addressing all channels with the given tag.
// The tag is folded on construction.
func TagSelector(subscriptionID uuid.UUID, tag string) Selector {
	return Selector{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		Tag:            NormalizeTag(tag),
		CreatedAt:      time.Now(),
	}
}

// ByTag reports whether the selector addresses channels by tag.
func (s Selector) ByTag() bool {
	return s.ChannelID == nil
}

// Validate enforces the exactly-one-of invariant.
func (s Selector) Validate() error {
	hasChannel := s.ChannelID != nil
	hasTag := s.Tag != ""
	switch {
	case hasChannel && hasTag:
		return ErrAmbiguousSelector
	case !hasChannel && !hasTag:
		return ErrEmptySelector
	}
	return nil
}
