package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/runtime"
)

// Timers is the slice of the durable runtime the scheduler needs. It is
// satisfied by *runtime.Runtime.
type Timers interface {
	UpsertTimer(ctx context.Context, instanceID uuid.UUID, id uuid.UUID, handler string, fireAt time.Time, payload any) error
	CancelTimer(ctx context.Context, id uuid.UUID) error
	Timers(ctx context.Context, instanceID uuid.UUID) ([]runtime.Timer, error)
}

// Scheduler arms, moves and cancels reminder registrations for one event
// instance at a time.
type Scheduler struct {
	timers Timers
	log    *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScheduler creates a scheduler on top of the given timer store.
func NewScheduler(timers Timers, opts ...SchedulerOption) (*Scheduler, error) {
	if timers == nil {
		return nil, ErrTimersNil
	}

	s := &Scheduler{
		timers: timers,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register arms one reminder per subscription offset. Offsets whose fire
// time already passed are skipped, so a late subscriber only gets the
// reminders that are still ahead. Registering twice is harmless: the
// deterministic ids land on the existing timers.
func (s *Scheduler) Register(ctx context.Context, instanceID uuid.UUID, evt event.Event, sub event.Subscription) error {
	if !sub.Active {
		return nil
	}

	now := time.Now()
	var errs []error
	for _, offset := range sub.ReminderOffsets() {
		fireAt := evt.StartAt.Add(-offset)
		if !fireAt.After(now) {
			s.log.DebugContext(ctx, "reminder offset already passed, not arming",
				logger.EventID(evt.ID),
				logger.SubscriptionID(sub.ID),
				slog.Duration("offset", offset),
			)
			continue
		}

		id := RegistrationID(evt.ID, sub.ID, offset)
		firing := Firing{EventID: evt.ID, SubscriptionID: sub.ID, Offset: offset}
		if err := s.timers.UpsertTimer(ctx, instanceID, id, HandlerName, fireAt, firing); err != nil {
			errs = append(errs, fmt.Errorf("failed to arm reminder at offset %s: %w", offset, err))
		}
	}
	return errors.Join(errs...)
}

// Reschedule recomputes fire times for the registrations that exist after
// the event's start moved. Registrations whose recomputed fire time already
// passed are cancelled rather than fired late.
func (s *Scheduler) Reschedule(ctx context.Context, instanceID uuid.UUID, evt event.Event) error {
	timers, err := s.timers.Timers(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to list timers: %w", err)
	}

	now := time.Now()
	var errs []error
	for _, t := range timers {
		firing, ok := decodeFiring(t)
		if !ok {
			continue
		}

		fireAt := evt.StartAt.Add(-firing.Offset)
		if !fireAt.After(now) {
			if err := s.timers.CancelTimer(ctx, t.ID); err != nil {
				errs = append(errs, fmt.Errorf("failed to cancel past-due reminder: %w", err))
				continue
			}
			s.log.InfoContext(ctx, "cancelled reminder whose fire time passed after reschedule",
				logger.EventID(firing.EventID),
				logger.SubscriptionID(firing.SubscriptionID),
				slog.Duration("offset", firing.Offset),
			)
			continue
		}

		if err := s.timers.UpsertTimer(ctx, instanceID, t.ID, HandlerName, fireAt, firing); err != nil {
			errs = append(errs, fmt.Errorf("failed to move reminder: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Cancel removes all registrations of one subscription.
func (s *Scheduler) Cancel(ctx context.Context, instanceID uuid.UUID, subscriptionID uuid.UUID) error {
	timers, err := s.timers.Timers(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to list timers: %w", err)
	}

	var errs []error
	for _, t := range timers {
		firing, ok := decodeFiring(t)
		if !ok || firing.SubscriptionID != subscriptionID {
			continue
		}
		if err := s.timers.CancelTimer(ctx, t.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to cancel reminder: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CancelAll removes every reminder registration of the instance, used when
// the event ends or is cancelled.
func (s *Scheduler) CancelAll(ctx context.Context, instanceID uuid.UUID) error {
	timers, err := s.timers.Timers(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to list timers: %w", err)
	}

	var errs []error
	for _, t := range timers {
		if t.Handler != HandlerName {
			continue
		}
		if err := s.timers.CancelTimer(ctx, t.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to cancel reminder: %w", err))
		}
	}
	return errors.Join(errs...)
}

func decodeFiring(t runtime.Timer) (Firing, bool) {
	if t.Handler != HandlerName {
		return Firing{}, false
	}
	var f Firing
	if err := json.Unmarshal(t.Payload, &f); err != nil {
		return Firing{}, false
	}
	return f, true
}
