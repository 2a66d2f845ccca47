package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/runtime"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires a store", func(t *testing.T) {
		t.Parallel()

		rt, err := runtime.New(nil)
		assert.ErrorIs(t, err, runtime.ErrStoreNil)
		assert.Nil(t, rt)
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		rt, err := runtime.New(runtime.NewMemoryStore(), runtime.WithGracePeriod(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, time.Hour, rt.GracePeriod())
	})
}

func TestRuntime_Start(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates instance with start signal", func(t *testing.T) {
		t.Parallel()

		rt, err := runtime.New(runtime.NewMemoryStore())
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, rt.Start(ctx, "event", id, "created", map[string]string{"title": "launch"}))

		inst, err := rt.Describe(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "event", inst.Kind)
		assert.Equal(t, "created", inst.State)
		assert.JSONEq(t, `{"title":"launch"}`, string(inst.Input))

		signals, err := rt.Signals(ctx, id)
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, runtime.StartSignalName, signals[0].Name)
	})

	t.Run("second start is a no-op", func(t *testing.T) {
		t.Parallel()

		rt, err := runtime.New(runtime.NewMemoryStore())
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, rt.Start(ctx, "event", id, "created", nil))
		require.NoError(t, rt.Start(ctx, "event", id, "created", nil))

		signals, err := rt.Signals(ctx, id)
		require.NoError(t, err)
		assert.Len(t, signals, 1, "duplicate start must not enqueue a second start signal")
	})
}

func TestRuntime_Signal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("appends in order", func(t *testing.T) {
		t.Parallel()

		rt, err := runtime.New(runtime.NewMemoryStore())
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, rt.Start(ctx, "event", id, "created", nil))
		require.NoError(t, rt.Signal(ctx, id, "subscription_added", map[string]string{"sub": "a"}))
		require.NoError(t, rt.Signal(ctx, id, "event_updated", nil))

		signals, err := rt.Signals(ctx, id)
		require.NoError(t, err)
		require.Len(t, signals, 3)
		assert.Equal(t, []string{runtime.StartSignalName, "subscription_added", "event_updated"},
			[]string{signals[0].Name, signals[1].Name, signals[2].Name})
		assert.Less(t, signals[0].Seq, signals[1].Seq)
		assert.Less(t, signals[1].Seq, signals[2].Seq)
	})

	t.Run("unknown instance", func(t *testing.T) {
		t.Parallel()

		rt, err := runtime.New(runtime.NewMemoryStore())
		require.NoError(t, err)

		err = rt.Signal(ctx, uuid.New(), "ping", nil)
		assert.ErrorIs(t, err, runtime.ErrInstanceNotFound)
	})

	t.Run("accepted during grace period", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		rt, err := runtime.New(store, runtime.WithGracePeriod(time.Hour))
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, rt.Start(ctx, "event", id, "created", nil))
		endedAt := time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateInstanceState(ctx, id, "ended", &endedAt))

		assert.NoError(t, rt.Signal(ctx, id, "late", nil))
	})

	t.Run("rejected after grace period", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		rt, err := runtime.New(store, runtime.WithGracePeriod(time.Minute))
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, rt.Start(ctx, "event", id, "created", nil))
		endedAt := time.Now().Add(-time.Hour)
		require.NoError(t, store.UpdateInstanceState(ctx, id, "ended", &endedAt))

		err = rt.Signal(ctx, id, "too_late", nil)
		assert.ErrorIs(t, err, runtime.ErrInstanceRetired)
	})
}

func TestRuntime_Timers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, err := runtime.New(runtime.NewMemoryStore())
	require.NoError(t, err)

	instanceID := uuid.New()
	timerID := uuid.New()
	fireAt := time.Now().Add(time.Hour)

	require.NoError(t, rt.UpsertTimer(ctx, instanceID, timerID, "remind", fireAt, map[string]string{"offset": "1h"}))

	timers, err := rt.Timers(ctx, instanceID)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, timerID, timers[0].ID)
	assert.Equal(t, "remind", timers[0].Handler)

	// Same id moves the schedule instead of adding a second timer.
	require.NoError(t, rt.UpsertTimer(ctx, instanceID, timerID, "remind", fireAt.Add(time.Hour), nil))
	timers, err = rt.Timers(ctx, instanceID)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.WithinDuration(t, fireAt.Add(time.Hour), timers[0].FireAt, time.Second)

	require.NoError(t, rt.CancelTimer(ctx, timerID))
	timers, err = rt.Timers(ctx, instanceID)
	require.NoError(t, err)
	assert.Empty(t, timers)

	assert.NoError(t, rt.CancelTimer(ctx, timerID), "cancelling a cancelled timer is a no-op")
}
