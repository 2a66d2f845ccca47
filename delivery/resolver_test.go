package delivery_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
)

func TestResolveChannelSelector(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sub := event.Subscription{ID: uuid.New(), UserID: userID, Active: true}
	ch := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelEmail, Target: "a@example.com", Active: true}

	res := delivery.Resolve(sub,
		[]event.Selector{event.ChannelSelector(sub.ID, ch.ID)},
		[]event.Channel{ch},
	)

	require.Len(t, res.Channels, 1)
	assert.Equal(t, ch.ID, res.Channels[0].ID)
	assert.Empty(t, res.Gaps)
}

func TestResolveTagSelector(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sub := event.Subscription{ID: uuid.New(), UserID: userID, Active: true}

	phone1 := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelNtfy, Target: "https://ntfy.sh/a", Tag: "phone", Active: true}
	phone2 := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelGotify, Target: "https://gotify/b", Tag: "phone", Active: true}
	desk := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelEmail, Target: "c@example.com", Tag: "desk", Active: true}
	inactivePhone := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelNtfy, Target: "https://ntfy.sh/d", Tag: "phone", Active: false}

	t.Run("matches all active channels with tag", func(t *testing.T) {
		t.Parallel()
		res := delivery.Resolve(sub,
			[]event.Selector{event.TagSelector(sub.ID, "phone")},
			[]event.Channel{phone1, phone2, desk, inactivePhone},
		)
		assert.Len(t, res.Channels, 2)
		assert.Empty(t, res.Gaps)
	})

	t.Run("tag matching is case-insensitive", func(t *testing.T) {
		t.Parallel()
		res := delivery.Resolve(sub,
			[]event.Selector{event.TagSelector(sub.ID, "PHONE")},
			[]event.Channel{phone1, phone2},
		)
		assert.Len(t, res.Channels, 2)
	})

	t.Run("unmatched tag is a gap", func(t *testing.T) {
		t.Parallel()
		res := delivery.Resolve(sub,
			[]event.Selector{event.TagSelector(sub.ID, "watch")},
			[]event.Channel{phone1, desk},
		)
		assert.Empty(t, res.Channels)
		require.Len(t, res.Gaps, 1)
		assert.Equal(t, delivery.GapTagUnmatched, res.Gaps[0].Reason)
	})
}

func TestResolveDeduplicatesChannels(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sub := event.Subscription{ID: uuid.New(), UserID: userID, Active: true}
	ch := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelNtfy, Target: "https://ntfy.sh/a", Tag: "phone", Active: true}

	// Addressed both explicitly and through its tag: one delivery.
	res := delivery.Resolve(sub,
		[]event.Selector{
			event.ChannelSelector(sub.ID, ch.ID),
			event.TagSelector(sub.ID, "phone"),
		},
		[]event.Channel{ch},
	)

	assert.Len(t, res.Channels, 1)
	assert.Empty(t, res.Gaps)
}

func TestResolveGaps(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sub := event.Subscription{ID: uuid.New(), UserID: userID, Active: true}

	inactive := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelEmail, Target: "a@example.com", Active: false}
	foreign := event.Channel{ID: uuid.New(), UserID: uuid.New(), Kind: event.ChannelEmail, Target: "b@example.com", Active: true}
	missing := uuid.New()

	tests := []struct {
		name     string
		selector event.Selector
		channels []event.Channel
		reason   delivery.GapReason
	}{
		{
			name:     "missing channel",
			selector: event.ChannelSelector(sub.ID, missing),
			channels: []event.Channel{inactive},
			reason:   delivery.GapChannelMissing,
		},
		{
			name:     "inactive channel",
			selector: event.ChannelSelector(sub.ID, inactive.ID),
			channels: []event.Channel{inactive},
			reason:   delivery.GapChannelInactive,
		},
		{
			name:     "foreign channel",
			selector: event.ChannelSelector(sub.ID, foreign.ID),
			channels: []event.Channel{foreign},
			reason:   delivery.GapChannelForeign,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := delivery.Resolve(sub, []event.Selector{tt.selector}, tt.channels)
			assert.Empty(t, res.Channels)
			require.Len(t, res.Gaps, 1)
			assert.Equal(t, tt.reason, res.Gaps[0].Reason)
			assert.Equal(t, sub.ID, res.Gaps[0].SubscriptionID)
		})
	}
}

func TestResolveGapDoesNotBlockOtherSelectors(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sub := event.Subscription{ID: uuid.New(), UserID: userID, Active: true}
	good := event.Channel{ID: uuid.New(), UserID: userID, Kind: event.ChannelEmail, Target: "a@example.com", Active: true}

	res := delivery.Resolve(sub,
		[]event.Selector{
			event.ChannelSelector(sub.ID, uuid.New()), // dangling
			event.ChannelSelector(sub.ID, good.ID),
		},
		[]event.Channel{good},
	)

	require.Len(t, res.Channels, 1)
	assert.Equal(t, good.ID, res.Channels[0].ID)
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, delivery.GapChannelMissing, res.Gaps[0].Reason)
}
