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

func newInstance(id uuid.UUID) runtime.Instance {
	now := time.Now()
	return runtime.Instance{
		ID:        id,
		Kind:      "test",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newSignal(instanceID uuid.UUID, name string) runtime.Signal {
	now := time.Now()
	return runtime.Signal{
		ID:          uuid.New(),
		InstanceID:  instanceID,
		Name:        name,
		Status:      runtime.StatusPending,
		MaxAttempts: 3,
		ScheduledAt: now.Add(-time.Second),
		CreatedAt:   now,
	}
}

func newTimer(instanceID uuid.UUID, handler string, fireAt time.Time) runtime.Timer {
	now := time.Now()
	return runtime.Timer{
		ID:          uuid.New(),
		InstanceID:  instanceID,
		Handler:     handler,
		FireAt:      fireAt,
		Status:      runtime.StatusPending,
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func mustCreateInstance(t *testing.T, store *runtime.MemoryStore, id uuid.UUID) runtime.Signal {
	t.Helper()
	start := newSignal(id, runtime.StartSignalName)
	require.NoError(t, store.CreateInstance(context.Background(), newInstance(id), start))
	return start
}

func TestMemoryStore_CreateInstance(t *testing.T) {
	t.Parallel()

	t.Run("creates instance with start signal", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		mustCreateInstance(t, store, id)

		inst, err := store.Instance(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, inst.ID)
		assert.Nil(t, inst.EndedAt)

		signals, err := store.Signals(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, runtime.StartSignalName, signals[0].Name)
		assert.Equal(t, int64(1), signals[0].Seq)
	})

	t.Run("rejects duplicate instance id", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		mustCreateInstance(t, store, id)

		err := store.CreateInstance(context.Background(), newInstance(id), newSignal(id, runtime.StartSignalName))
		assert.ErrorIs(t, err, runtime.ErrInstanceExists)
	})

	t.Run("unknown instance lookups fail", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()

		_, err := store.Instance(context.Background(), uuid.New())
		assert.ErrorIs(t, err, runtime.ErrInstanceNotFound)

		err = store.AppendSignal(context.Background(), newSignal(uuid.New(), "orphan"))
		assert.ErrorIs(t, err, runtime.ErrInstanceNotFound)
	})
}

func TestMemoryStore_ClaimSignal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	workerID := uuid.New()

	t.Run("claims signals in seq order", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		mustCreateInstance(t, store, id)
		require.NoError(t, store.AppendSignal(ctx, newSignal(id, "first")))
		require.NoError(t, store.AppendSignal(ctx, newSignal(id, "second")))

		claimed, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, runtime.StartSignalName, claimed.Name)
		assert.Equal(t, runtime.StatusProcessing, claimed.Status)
		assert.Equal(t, workerID, *claimed.LockedBy)

		// A processing head blocks the rest of the instance's queue.
		_, err = store.ClaimSignal(ctx, workerID, time.Minute)
		assert.ErrorIs(t, err, runtime.ErrNoSignalToClaim)

		require.NoError(t, store.CompleteSignal(ctx, claimed.ID))

		claimed, err = store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "first", claimed.Name)
	})

	t.Run("backing off head blocks younger signals", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		mustCreateInstance(t, store, id)
		require.NoError(t, store.AppendSignal(ctx, newSignal(id, "younger")))

		claimed, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailSignal(ctx, claimed.ID, "boom"))

		// The head went back to pending with backoff; the younger signal
		// must not be claimed ahead of it.
		_, err = store.ClaimSignal(ctx, workerID, time.Minute)
		assert.ErrorIs(t, err, runtime.ErrNoSignalToClaim)
	})

	t.Run("parked head releases younger signals", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		start := newSignal(id, runtime.StartSignalName)
		start.MaxAttempts = 1
		require.NoError(t, store.CreateInstance(ctx, newInstance(id), start))
		require.NoError(t, store.AppendSignal(ctx, newSignal(id, "younger")))

		claimed, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailSignal(ctx, claimed.ID, "boom"))

		claimed, err = store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "younger", claimed.Name)

		signals, err := store.Signals(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, runtime.StatusParked, signals[0].Status)
	})

	t.Run("instances are claimed independently", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		first := uuid.New()
		second := uuid.New()
		mustCreateInstance(t, store, first)
		mustCreateInstance(t, store, second)

		a, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		b, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)

		assert.NotEqual(t, a.InstanceID, b.InstanceID)
	})

	t.Run("future scheduled signal is not claimable", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		start := newSignal(id, runtime.StartSignalName)
		start.ScheduledAt = time.Now().Add(time.Hour)
		require.NoError(t, store.CreateInstance(ctx, newInstance(id), start))

		_, err := store.ClaimSignal(ctx, workerID, time.Minute)
		assert.ErrorIs(t, err, runtime.ErrNoSignalToClaim)
	})
}

func TestMemoryStore_FailSignal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	workerID := uuid.New()

	t.Run("requeues with backoff and records error", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		mustCreateInstance(t, store, id)

		claimed, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailSignal(ctx, claimed.ID, "transient"))

		signals, err := store.Signals(ctx, id)
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, runtime.StatusPending, signals[0].Status)
		assert.Equal(t, int8(1), signals[0].Attempts)
		assert.Equal(t, "transient", *signals[0].Error)
		assert.True(t, signals[0].ScheduledAt.After(time.Now()), "backoff should push the signal into the future")
	})

	t.Run("parks at max attempts", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		start := newSignal(id, runtime.StartSignalName)
		start.MaxAttempts = 2
		start.Attempts = 1
		require.NoError(t, store.CreateInstance(ctx, newInstance(id), start))

		claimed, err := store.ClaimSignal(ctx, workerID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailSignal(ctx, claimed.ID, "still broken"))

		signals, err := store.Signals(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, runtime.StatusParked, signals[0].Status)
	})

	t.Run("rejects items not in processing", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		start := mustCreateInstance(t, store, id)

		assert.ErrorIs(t, store.FailSignal(ctx, start.ID, "x"), runtime.ErrNotProcessing)
		assert.ErrorIs(t, store.CompleteSignal(ctx, start.ID), runtime.ErrNotProcessing)
		assert.ErrorIs(t, store.CompleteSignal(ctx, uuid.New()), runtime.ErrSignalNotFound)
	})
}

func TestMemoryStore_Timers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	workerID := uuid.New()

	t.Run("claims earliest due timer", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		id := uuid.New()
		later := newTimer(id, "remind", time.Now().Add(-time.Minute))
		earlier := newTimer(id, "remind", time.Now().Add(-time.Hour))
		require.NoError(t, store.UpsertTimer(ctx, later))
		require.NoError(t, store.UpsertTimer(ctx, earlier))

		claimed, err := store.ClaimTimer(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, earlier.ID, claimed.ID)
		assert.Equal(t, runtime.StatusProcessing, claimed.Status)
	})

	t.Run("future timer is not claimable", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		require.NoError(t, store.UpsertTimer(ctx, newTimer(uuid.New(), "remind", time.Now().Add(time.Hour))))

		_, err := store.ClaimTimer(ctx, workerID, time.Minute)
		assert.ErrorIs(t, err, runtime.ErrNoTimerToClaim)
	})

	t.Run("upsert with same id reschedules instead of duplicating", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		instanceID := uuid.New()
		original := newTimer(instanceID, "remind", time.Now().Add(time.Hour))
		require.NoError(t, store.UpsertTimer(ctx, original))

		moved := original
		moved.FireAt = time.Now().Add(2 * time.Hour)
		moved.Payload = []byte(`{"moved":true}`)
		require.NoError(t, store.UpsertTimer(ctx, moved))

		timers, err := store.Timers(ctx, instanceID)
		require.NoError(t, err)
		require.Len(t, timers, 1)
		assert.WithinDuration(t, moved.FireAt, timers[0].FireAt, time.Second)
		assert.JSONEq(t, `{"moved":true}`, string(timers[0].Payload))
	})

	t.Run("cancel removes timer and tolerates unknown ids", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		instanceID := uuid.New()
		timer := newTimer(instanceID, "remind", time.Now().Add(time.Hour))
		require.NoError(t, store.UpsertTimer(ctx, timer))

		require.NoError(t, store.CancelTimer(ctx, timer.ID))
		timers, err := store.Timers(ctx, instanceID)
		require.NoError(t, err)
		assert.Empty(t, timers)

		assert.NoError(t, store.CancelTimer(ctx, uuid.New()))
	})

	t.Run("failed timer requeues with backoff", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		instanceID := uuid.New()
		timer := newTimer(instanceID, "remind", time.Now().Add(-time.Minute))
		require.NoError(t, store.UpsertTimer(ctx, timer))

		claimed, err := store.ClaimTimer(ctx, workerID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailTimer(ctx, claimed.ID, "boom"))

		timers, err := store.Timers(ctx, instanceID)
		require.NoError(t, err)
		require.Len(t, timers, 1)
		assert.Equal(t, runtime.StatusPending, timers[0].Status)
		assert.Equal(t, int8(1), timers[0].Attempts)
		assert.True(t, timers[0].FireAt.After(time.Now()), "backoff should push the retry into the future")
	})

	t.Run("failed timer parks at max attempts", func(t *testing.T) {
		t.Parallel()

		store := runtime.NewMemoryStore()
		instanceID := uuid.New()
		timer := newTimer(instanceID, "remind", time.Now().Add(-time.Minute))
		timer.MaxAttempts = 1
		require.NoError(t, store.UpsertTimer(ctx, timer))

		claimed, err := store.ClaimTimer(ctx, workerID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailTimer(ctx, claimed.ID, "boom"))

		timers, err := store.Timers(ctx, instanceID)
		require.NoError(t, err)
		require.Len(t, timers, 1)
		assert.Equal(t, runtime.StatusParked, timers[0].Status)
		assert.Equal(t, "boom", *timers[0].Error)
	})
}

func TestMemoryStore_ExpireLocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := runtime.NewMemoryStore()
	id := uuid.New()
	mustCreateInstance(t, store, id)

	claimed, err := store.ClaimSignal(ctx, uuid.New(), 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	released, err := store.ExpireLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reclaimed, err := store.ClaimSignal(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, reclaimed.ID)
}

func TestMemoryStore_RetireInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := runtime.NewMemoryStore()

	endedLongAgo := uuid.New()
	mustCreateInstance(t, store, endedLongAgo)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.UpdateInstanceState(ctx, endedLongAgo, "ended", &past))
	require.NoError(t, store.UpsertTimer(ctx, newTimer(endedLongAgo, "remind", time.Now().Add(time.Hour))))

	endedRecently := uuid.New()
	mustCreateInstance(t, store, endedRecently)
	recent := time.Now().Add(-time.Hour)
	require.NoError(t, store.UpdateInstanceState(ctx, endedRecently, "ended", &recent))

	active := uuid.New()
	mustCreateInstance(t, store, active)

	retired, err := store.RetireInstances(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	_, err = store.Instance(ctx, endedLongAgo)
	assert.ErrorIs(t, err, runtime.ErrInstanceNotFound)
	timers, err := store.Timers(ctx, endedLongAgo)
	require.NoError(t, err)
	assert.Empty(t, timers)

	_, err = store.Instance(ctx, endedRecently)
	assert.NoError(t, err)
	_, err = store.Instance(ctx, active)
	assert.NoError(t, err)
}
