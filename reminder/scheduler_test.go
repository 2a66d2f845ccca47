package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/reminder"
	"github.com/pypeaday/soonish-sub002/runtime"
)

func newScheduler(t *testing.T) (*reminder.Scheduler, *runtime.Runtime) {
	t.Helper()
	rt, err := runtime.New(runtime.NewMemoryStore())
	require.NoError(t, err)
	s, err := reminder.NewScheduler(rt)
	require.NoError(t, err)
	return s, rt
}

func testEvent(startIn time.Duration) event.Event {
	now := time.Now()
	return event.Event{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Title:       "launch party",
		StartAt:     now.Add(startIn),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testSubscription(eventID uuid.UUID, offsets ...time.Duration) event.Subscription {
	return event.Subscription{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    uuid.New(),
		Active:    true,
		Offsets:   offsets,
		CreatedAt: time.Now(),
	}
}

func reminderTimers(t *testing.T, rt *runtime.Runtime, instanceID uuid.UUID) []runtime.Timer {
	t.Helper()
	timers, err := rt.Timers(context.Background(), instanceID)
	require.NoError(t, err)
	out := timers[:0]
	for _, timer := range timers {
		if timer.Handler == reminder.HandlerName {
			out = append(out, timer)
		}
	}
	return out
}

func TestRegistrationID(t *testing.T) {
	t.Parallel()

	eventID := uuid.New()
	subID := uuid.New()

	a := reminder.RegistrationID(eventID, subID, time.Hour)
	b := reminder.RegistrationID(eventID, subID, time.Hour)
	assert.Equal(t, a, b, "same inputs must derive the same id")

	assert.NotEqual(t, a, reminder.RegistrationID(eventID, subID, 24*time.Hour))
	assert.NotEqual(t, a, reminder.RegistrationID(eventID, uuid.New(), time.Hour))
	assert.NotEqual(t, a, reminder.RegistrationID(uuid.New(), subID, time.Hour))
}

func TestScheduler_Register(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("arms one timer per future offset", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		sub := testSubscription(evt.ID, 24*time.Hour, time.Hour)

		require.NoError(t, s.Register(ctx, instanceID, evt, sub))

		timers := reminderTimers(t, rt, instanceID)
		require.Len(t, timers, 2)
		for _, timer := range timers {
			assert.True(t, timer.FireAt.After(time.Now()))
		}
	})

	t.Run("registering twice lands on the same timers", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		sub := testSubscription(evt.ID, 24*time.Hour, time.Hour)

		require.NoError(t, s.Register(ctx, instanceID, evt, sub))
		require.NoError(t, s.Register(ctx, instanceID, evt, sub))

		assert.Len(t, reminderTimers(t, rt, instanceID), 2)
	})

	t.Run("skips offsets that already passed", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		// Event starts in 30 minutes: the 24h offset is long gone, the 5m
		// offset is still ahead.
		evt := testEvent(30 * time.Minute)
		sub := testSubscription(evt.ID, 24*time.Hour, 5*time.Minute)

		require.NoError(t, s.Register(ctx, instanceID, evt, sub))

		timers := reminderTimers(t, rt, instanceID)
		require.Len(t, timers, 1)
		assert.WithinDuration(t, evt.StartAt.Add(-5*time.Minute), timers[0].FireAt, time.Second)
	})

	t.Run("uses default offsets when the subscription has none", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(72 * time.Hour)
		sub := testSubscription(evt.ID)

		require.NoError(t, s.Register(ctx, instanceID, evt, sub))

		assert.Len(t, reminderTimers(t, rt, instanceID), len(event.DefaultOffsets))
	})

	t.Run("ignores inactive subscriptions", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		sub := testSubscription(evt.ID, time.Hour)
		sub.Active = false

		require.NoError(t, s.Register(ctx, instanceID, evt, sub))

		assert.Empty(t, reminderTimers(t, rt, instanceID))
	})
}

func TestScheduler_Reschedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("moves fire times with the event start", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		sub := testSubscription(evt.ID, time.Hour)
		require.NoError(t, s.Register(ctx, instanceID, evt, sub))

		evt.StartAt = evt.StartAt.Add(24 * time.Hour)
		require.NoError(t, s.Reschedule(ctx, instanceID, evt))

		timers := reminderTimers(t, rt, instanceID)
		require.Len(t, timers, 1)
		assert.WithinDuration(t, evt.StartAt.Add(-time.Hour), timers[0].FireAt, time.Second)
	})

	t.Run("cancels registrations whose new fire time passed", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		sub := testSubscription(evt.ID, 24*time.Hour, time.Hour)
		require.NoError(t, s.Register(ctx, instanceID, evt, sub))
		require.Len(t, reminderTimers(t, rt, instanceID), 2)

		// Start pulled in to 2h from now: the 24h reminder is in the past
		// and must be cancelled, the 1h one survives.
		evt.StartAt = time.Now().Add(2 * time.Hour)
		require.NoError(t, s.Reschedule(ctx, instanceID, evt))

		timers := reminderTimers(t, rt, instanceID)
		require.Len(t, timers, 1)
		assert.WithinDuration(t, evt.StartAt.Add(-time.Hour), timers[0].FireAt, time.Second)
	})

	t.Run("leaves foreign timers alone", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		watchID := uuid.New()
		require.NoError(t, rt.UpsertTimer(ctx, instanceID, watchID, "lifecycle.watch", time.Now().Add(time.Hour), nil))

		evt := testEvent(48 * time.Hour)
		require.NoError(t, s.Reschedule(ctx, instanceID, evt))

		timers, err := rt.Timers(ctx, instanceID)
		require.NoError(t, err)
		require.Len(t, timers, 1)
		assert.Equal(t, watchID, timers[0].ID)
	})
}

func TestScheduler_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("removes one subscription's registrations", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		keep := testSubscription(evt.ID, time.Hour)
		drop := testSubscription(evt.ID, time.Hour, 2*time.Hour)
		require.NoError(t, s.Register(ctx, instanceID, evt, keep))
		require.NoError(t, s.Register(ctx, instanceID, evt, drop))
		require.Len(t, reminderTimers(t, rt, instanceID), 3)

		require.NoError(t, s.Cancel(ctx, instanceID, drop.ID))

		timers := reminderTimers(t, rt, instanceID)
		require.Len(t, timers, 1)
		assert.Equal(t, reminder.RegistrationID(evt.ID, keep.ID, time.Hour), timers[0].ID)
	})

	t.Run("cancel all clears reminders but not other handlers", func(t *testing.T) {
		t.Parallel()

		s, rt := newScheduler(t)
		instanceID := uuid.New()
		evt := testEvent(48 * time.Hour)
		sub := testSubscription(evt.ID, time.Hour, 2*time.Hour)
		require.NoError(t, s.Register(ctx, instanceID, evt, sub))
		require.NoError(t, rt.UpsertTimer(ctx, instanceID, uuid.New(), "lifecycle.watch", evt.StartAt, nil))

		require.NoError(t, s.CancelAll(ctx, instanceID))

		timers, err := rt.Timers(ctx, instanceID)
		require.NoError(t, err)
		require.Len(t, timers, 1)
		assert.Equal(t, "lifecycle.watch", timers[0].Handler)
	})
}
