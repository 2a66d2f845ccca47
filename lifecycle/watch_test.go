package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/lifecycle"
	"github.com/pypeaday/soonish-sub002/runtime"
)

type sentSignal struct {
	instanceID uuid.UUID
	name       string
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentSignal
	err  error
}

func (f *fakeSignaler) Signal(_ context.Context, instanceID uuid.UUID, name string, _ any) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentSignal{instanceID: instanceID, name: name})
	return nil
}

func TestWatchHandler_HandleWatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	setup := func(t *testing.T, startIn time.Duration) (*lifecycle.WatchHandler, *fakeDirectory, *fakeTimers, *fakeSignaler, event.Event, runtime.Timer) {
		t.Helper()

		evt := event.Event{
			ID:          uuid.New(),
			OrganizerID: uuid.New(),
			Title:       "meetup",
			StartAt:     time.Now().Add(startIn),
		}
		dir := &fakeDirectory{events: map[uuid.UUID]event.Event{evt.ID: evt}}
		timers := newFakeTimers()
		signaler := &fakeSignaler{}

		h, err := lifecycle.NewWatchHandler(dir, timers, signaler)
		require.NoError(t, err)

		timer := runtime.Timer{
			ID:         lifecycle.WatchID(evt.ID),
			InstanceID: lifecycle.InstanceID(evt.ID),
			Handler:    lifecycle.HandlerWatch,
			FireAt:     evt.StartAt,
		}
		return h, dir, timers, signaler, evt, timer
	}

	t.Run("signals elapsed when the window passed", func(t *testing.T) {
		t.Parallel()

		h, _, _, signaler, evt, timer := setup(t, -time.Minute)

		require.NoError(t, h.HandleWatch(ctx, timer, lifecycle.WatchPayload{EventID: evt.ID}))

		require.Len(t, signaler.sent, 1)
		assert.Equal(t, lifecycle.SignalEventElapsed, signaler.sent[0].name)
		assert.Equal(t, lifecycle.InstanceID(evt.ID), signaler.sent[0].instanceID)
	})

	t.Run("re-arms when an update moved the window out", func(t *testing.T) {
		t.Parallel()

		h, _, timers, signaler, evt, timer := setup(t, 2*time.Hour)

		require.NoError(t, h.HandleWatch(ctx, timer, lifecycle.WatchPayload{EventID: evt.ID}))

		assert.Empty(t, signaler.sent, "no elapsed signal before the real end")
		armed, ok := timers.armed[lifecycle.WatchID(evt.ID)]
		require.True(t, ok)
		assert.WithinDuration(t, evt.StartAt, armed.fireAt, time.Second)
	})

	t.Run("drops firing for a retired instance", func(t *testing.T) {
		t.Parallel()

		h, _, _, signaler, evt, timer := setup(t, -time.Minute)
		signaler.err = runtime.ErrInstanceRetired

		assert.NoError(t, h.HandleWatch(ctx, timer, lifecycle.WatchPayload{EventID: evt.ID}))
	})

	t.Run("propagates event load errors for retry", func(t *testing.T) {
		t.Parallel()

		h, dir, _, _, evt, timer := setup(t, -time.Minute)
		delete(dir.events, evt.ID)

		assert.Error(t, h.HandleWatch(ctx, timer, lifecycle.WatchPayload{EventID: evt.ID}))
	})

	t.Run("propagates signal errors for retry", func(t *testing.T) {
		t.Parallel()

		h, _, _, signaler, evt, timer := setup(t, -time.Minute)
		signaler.err = errors.New("store down")

		assert.Error(t, h.HandleWatch(ctx, timer, lifecycle.WatchPayload{EventID: evt.ID}))
	})
}
