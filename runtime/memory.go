package runtime

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory for testing and local development.
// Unlike a database-backed store it holds everything under one mutex, which
// is fine for the single-process setups it targets. Lock expiry is driven
// by the janitor's ExpireLocks calls, so the store runs no goroutines of
// its own.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
	signals   map[uuid.UUID]*Signal
	timers    map[uuid.UUID]*Timer

	// Indexes for efficient claims and cascades.
	signalsByInstance map[uuid.UUID][]uuid.UUID // seq order
	signalsByStatus   map[Status][]uuid.UUID
	timersByInstance  map[uuid.UUID][]uuid.UUID
	timersByStatus    map[Status][]uuid.UUID

	nextSeq map[uuid.UUID]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:         make(map[uuid.UUID]*Instance),
		signals:           make(map[uuid.UUID]*Signal),
		timers:            make(map[uuid.UUID]*Timer),
		signalsByInstance: make(map[uuid.UUID][]uuid.UUID),
		signalsByStatus:   make(map[Status][]uuid.UUID),
		timersByInstance:  make(map[uuid.UUID][]uuid.UUID),
		timersByStatus:    make(map[Status][]uuid.UUID),
		nextSeq:           make(map[uuid.UUID]int64),
	}
}

func (ms *MemoryStore) CreateInstance(_ context.Context, inst Instance, start Signal) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.instances[inst.ID]; exists {
		return ErrInstanceExists
	}

	instCopy := inst
	ms.instances[inst.ID] = &instCopy
	ms.nextSeq[inst.ID] = 1

	ms.appendSignalLocked(start)
	return nil
}

func (ms *MemoryStore) Instance(_ context.Context, id uuid.UUID) (*Instance, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	inst, exists := ms.instances[id]
	if !exists {
		return nil, ErrInstanceNotFound
	}
	instCopy := *inst
	return &instCopy, nil
}

func (ms *MemoryStore) UpdateInstanceState(_ context.Context, id uuid.UUID, state string, endedAt *time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	inst, exists := ms.instances[id]
	if !exists {
		return ErrInstanceNotFound
	}

	inst.State = state
	inst.UpdatedAt = time.Now()
	if endedAt != nil && inst.EndedAt == nil {
		ts := *endedAt
		inst.EndedAt = &ts
	}
	return nil
}

func (ms *MemoryStore) AppendSignal(_ context.Context, sig Signal) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.instances[sig.InstanceID]; !exists {
		return ErrInstanceNotFound
	}

	ms.appendSignalLocked(sig)
	return nil
}

// appendSignalLocked assigns the next Seq and stores the signal. Callers
// hold the mutex.
func (ms *MemoryStore) appendSignalLocked(sig Signal) {
	sig.Seq = ms.nextSeq[sig.InstanceID]
	ms.nextSeq[sig.InstanceID]++

	sigCopy := sig
	ms.signals[sig.ID] = &sigCopy
	ms.signalsByInstance[sig.InstanceID] = append(ms.signalsByInstance[sig.InstanceID], sig.ID)
	ms.signalsByStatus[sig.Status] = append(ms.signalsByStatus[sig.Status], sig.ID)
}

func (ms *MemoryStore) ClaimSignal(_ context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Signal, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Signal

	// For each instance find the head of its queue: the lowest-seq signal
	// that is neither completed nor parked. Only a pending, due head is
	// claimable; a processing or backing-off head blocks the instance.
	for instanceID := range ms.signalsByInstance {
		head := ms.headSignalLocked(instanceID)
		if head == nil || head.Status != StatusPending || head.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			head.ScheduledAt.Before(best.ScheduledAt) ||
			(head.ScheduledAt.Equal(best.ScheduledAt) && head.CreatedAt.Before(best.CreatedAt)) {
			best = head
		}
	}

	if best == nil {
		return nil, ErrNoSignalToClaim
	}

	lockUntil := now.Add(lockDuration)
	ms.removeSignalFromStatusIndex(best.ID, best.Status)
	best.Status = StatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID
	ms.signalsByStatus[StatusProcessing] = append(ms.signalsByStatus[StatusProcessing], best.ID)

	sigCopy := *best
	return &sigCopy, nil
}

// headSignalLocked returns the first signal of the instance, in seq order,
// that is still live. Callers hold the mutex.
func (ms *MemoryStore) headSignalLocked(instanceID uuid.UUID) *Signal {
	for _, id := range ms.signalsByInstance[instanceID] {
		sig := ms.signals[id]
		if sig.Status == StatusCompleted || sig.Status == StatusParked {
			continue
		}
		return sig
	}
	return nil
}

func (ms *MemoryStore) CompleteSignal(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sig, exists := ms.signals[id]
	if !exists {
		return ErrSignalNotFound
	}
	if sig.Status != StatusProcessing {
		return ErrNotProcessing
	}

	now := time.Now()
	ms.removeSignalFromStatusIndex(id, sig.Status)
	sig.Status = StatusCompleted
	sig.ProcessedAt = &now
	sig.LockedUntil = nil
	sig.LockedBy = nil
	ms.signalsByStatus[StatusCompleted] = append(ms.signalsByStatus[StatusCompleted], id)
	return nil
}

func (ms *MemoryStore) FailSignal(_ context.Context, id uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sig, exists := ms.signals[id]
	if !exists {
		return ErrSignalNotFound
	}
	if sig.Status != StatusProcessing {
		return ErrNotProcessing
	}

	sig.Attempts++
	sig.Error = &errorMsg
	sig.LockedUntil = nil
	sig.LockedBy = nil
	ms.removeSignalFromStatusIndex(id, StatusProcessing)

	if sig.Attempts >= sig.MaxAttempts {
		sig.Status = StatusParked
		ms.signalsByStatus[StatusParked] = append(ms.signalsByStatus[StatusParked], id)
		return nil
	}

	// Linear backoff: 30s, 60s, 90s. Keeps retries prompt without letting a
	// persistently failing signal hammer the handler.
	sig.Status = StatusPending
	sig.ScheduledAt = time.Now().Add(time.Duration(sig.Attempts) * 30 * time.Second)
	ms.signalsByStatus[StatusPending] = append(ms.signalsByStatus[StatusPending], id)
	return nil
}

func (ms *MemoryStore) ParkSignal(_ context.Context, id uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sig, exists := ms.signals[id]
	if !exists {
		return ErrSignalNotFound
	}
	if sig.Status != StatusProcessing {
		return ErrNotProcessing
	}

	sig.Error = &errorMsg
	sig.LockedUntil = nil
	sig.LockedBy = nil
	ms.removeSignalFromStatusIndex(id, StatusProcessing)
	sig.Status = StatusParked
	ms.signalsByStatus[StatusParked] = append(ms.signalsByStatus[StatusParked], id)
	return nil
}

func (ms *MemoryStore) Signals(_ context.Context, instanceID uuid.UUID) ([]Signal, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if _, exists := ms.instances[instanceID]; !exists {
		return nil, ErrInstanceNotFound
	}

	ids := ms.signalsByInstance[instanceID]
	out := make([]Signal, 0, len(ids))
	for _, id := range ids {
		out = append(out, *ms.signals[id])
	}
	return out, nil
}

func (ms *MemoryStore) UpsertTimer(_ context.Context, t Timer) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if existing, exists := ms.timers[t.ID]; exists {
		// Reschedule in place. If a worker is firing the old registration
		// right now its complete call will see the status change and leave
		// the new schedule alone.
		ms.removeTimerFromStatusIndex(t.ID, existing.Status)
		existing.Handler = t.Handler
		existing.FireAt = t.FireAt
		existing.Payload = t.Payload
		existing.Status = StatusPending
		existing.Attempts = 0
		existing.Error = nil
		existing.LockedUntil = nil
		existing.LockedBy = nil
		existing.ProcessedAt = nil
		existing.UpdatedAt = time.Now()
		ms.timersByStatus[StatusPending] = append(ms.timersByStatus[StatusPending], t.ID)
		return nil
	}

	tCopy := t
	ms.timers[t.ID] = &tCopy
	ms.timersByInstance[t.InstanceID] = append(ms.timersByInstance[t.InstanceID], t.ID)
	ms.timersByStatus[t.Status] = append(ms.timersByStatus[t.Status], t.ID)
	return nil
}

func (ms *MemoryStore) CancelTimer(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, exists := ms.timers[id]
	if !exists {
		return nil
	}
	ms.deleteTimerLocked(t)
	return nil
}

func (ms *MemoryStore) Timers(_ context.Context, instanceID uuid.UUID) ([]Timer, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := ms.timersByInstance[instanceID]
	out := make([]Timer, 0, len(ids))
	for _, id := range ids {
		out = append(out, *ms.timers[id])
	}
	return out, nil
}

func (ms *MemoryStore) ClaimTimer(_ context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Timer, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Timer

	for _, id := range ms.timersByStatus[StatusPending] {
		t := ms.timers[id]
		if t.FireAt.After(now) {
			continue
		}
		if best == nil || t.FireAt.Before(best.FireAt) {
			best = t
		}
	}

	if best == nil {
		return nil, ErrNoTimerToClaim
	}

	lockUntil := now.Add(lockDuration)
	ms.removeTimerFromStatusIndex(best.ID, best.Status)
	best.Status = StatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID
	ms.timersByStatus[StatusProcessing] = append(ms.timersByStatus[StatusProcessing], best.ID)

	tCopy := *best
	return &tCopy, nil
}

func (ms *MemoryStore) CompleteTimer(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, exists := ms.timers[id]
	if !exists {
		return ErrTimerNotFound
	}
	if t.Status != StatusProcessing {
		return ErrNotProcessing
	}

	now := time.Now()
	ms.removeTimerFromStatusIndex(id, t.Status)
	t.Status = StatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	ms.timersByStatus[StatusCompleted] = append(ms.timersByStatus[StatusCompleted], id)
	return nil
}

func (ms *MemoryStore) FailTimer(_ context.Context, id uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, exists := ms.timers[id]
	if !exists {
		return ErrTimerNotFound
	}
	if t.Status != StatusProcessing {
		return ErrNotProcessing
	}

	t.Attempts++
	t.Error = &errorMsg
	t.LockedUntil = nil
	t.LockedBy = nil
	ms.removeTimerFromStatusIndex(id, StatusProcessing)

	if t.Attempts >= t.MaxAttempts {
		t.Status = StatusParked
		ms.timersByStatus[StatusParked] = append(ms.timersByStatus[StatusParked], id)
		return nil
	}

	t.Status = StatusPending
	t.FireAt = time.Now().Add(time.Duration(t.Attempts) * 30 * time.Second)
	ms.timersByStatus[StatusPending] = append(ms.timersByStatus[StatusPending], id)
	return nil
}

func (ms *MemoryStore) ParkTimer(_ context.Context, id uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, exists := ms.timers[id]
	if !exists {
		return ErrTimerNotFound
	}
	if t.Status != StatusProcessing {
		return ErrNotProcessing
	}

	t.Error = &errorMsg
	t.LockedUntil = nil
	t.LockedBy = nil
	ms.removeTimerFromStatusIndex(id, StatusProcessing)
	t.Status = StatusParked
	ms.timersByStatus[StatusParked] = append(ms.timersByStatus[StatusParked], id)
	return nil
}

func (ms *MemoryStore) ExpireLocks(_ context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	released := 0

	for _, id := range slices.Clone(ms.signalsByStatus[StatusProcessing]) {
		sig := ms.signals[id]
		if sig.LockedUntil != nil && sig.LockedUntil.Before(now) {
			sig.Status = StatusPending
			sig.LockedUntil = nil
			sig.LockedBy = nil
			ms.removeSignalFromStatusIndex(id, StatusProcessing)
			ms.signalsByStatus[StatusPending] = append(ms.signalsByStatus[StatusPending], id)
			released++
		}
	}

	for _, id := range slices.Clone(ms.timersByStatus[StatusProcessing]) {
		t := ms.timers[id]
		if t.LockedUntil != nil && t.LockedUntil.Before(now) {
			t.Status = StatusPending
			t.LockedUntil = nil
			t.LockedBy = nil
			ms.removeTimerFromStatusIndex(id, StatusProcessing)
			ms.timersByStatus[StatusPending] = append(ms.timersByStatus[StatusPending], id)
			released++
		}
	}

	return released, nil
}

func (ms *MemoryStore) RetireInstances(_ context.Context, endedBefore time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	retired := 0
	for id, inst := range ms.instances {
		if inst.EndedAt == nil || !inst.EndedAt.Before(endedBefore) {
			continue
		}

		for _, sigID := range ms.signalsByInstance[id] {
			sig := ms.signals[sigID]
			ms.removeSignalFromStatusIndex(sigID, sig.Status)
			delete(ms.signals, sigID)
		}
		delete(ms.signalsByInstance, id)

		for _, timerID := range slices.Clone(ms.timersByInstance[id]) {
			ms.deleteTimerLocked(ms.timers[timerID])
		}

		delete(ms.instances, id)
		delete(ms.nextSeq, id)
		retired++
	}
	return retired, nil
}

// deleteTimerLocked removes the timer from storage and all indexes. Callers
// hold the mutex.
func (ms *MemoryStore) deleteTimerLocked(t *Timer) {
	ms.removeTimerFromStatusIndex(t.ID, t.Status)
	ms.timersByInstance[t.InstanceID] = slices.DeleteFunc(ms.timersByInstance[t.InstanceID], func(id uuid.UUID) bool {
		return id == t.ID
	})
	if len(ms.timersByInstance[t.InstanceID]) == 0 {
		delete(ms.timersByInstance, t.InstanceID)
	}
	delete(ms.timers, t.ID)
}

func (ms *MemoryStore) removeSignalFromStatusIndex(id uuid.UUID, status Status) {
	ms.signalsByStatus[status] = slices.DeleteFunc(ms.signalsByStatus[status], func(sid uuid.UUID) bool {
		return sid == id
	})
}

func (ms *MemoryStore) removeTimerFromStatusIndex(id uuid.UUID, status Status) {
	ms.timersByStatus[status] = slices.DeleteFunc(ms.timersByStatus[status], func(tid uuid.UUID) bool {
		return tid == id
	})
}
