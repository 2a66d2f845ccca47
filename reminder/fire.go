package reminder

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/runtime"
)

type (
	// Instances answers whether the orchestration behind an event has
	// ended. Satisfied by *runtime.Runtime.
	Instances interface {
		Describe(ctx context.Context, id uuid.UUID) (*runtime.Instance, error)
	}

	// Directory loads fresh event state at fire time.
	Directory interface {
		Event(ctx context.Context, id uuid.UUID) (event.Event, error)
		Subscription(ctx context.Context, id uuid.UUID) (event.Subscription, error)
	}

	// Deliverer sends the reminder notification to one subscription.
	Deliverer interface {
		DeliverReminder(ctx context.Context, evt event.Event, sub event.Subscription, offset time.Duration) error
	}
)

// FireHandler executes reminder registrations when their timers fire. Wire
// it with runtime.NewTimerHandler(reminder.HandlerName, h.HandleFiring).
type FireHandler struct {
	instances Instances
	dir       Directory
	deliverer Deliverer
	recorder  delivery.Recorder
	log       *slog.Logger
}

// FireHandlerOption configures a FireHandler.
type FireHandlerOption func(*FireHandler)

// WithFireLogger sets the fire handler's logger.
func WithFireLogger(log *slog.Logger) FireHandlerOption {
	return func(h *FireHandler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewFireHandler creates the firing side of the reminder pipeline.
func NewFireHandler(instances Instances, dir Directory, deliverer Deliverer, recorder delivery.Recorder, opts ...FireHandlerOption) (*FireHandler, error) {
	if instances == nil || dir == nil || deliverer == nil || recorder == nil {
		return nil, ErrDependencyNil
	}

	h := &FireHandler{
		instances: instances,
		dir:       dir,
		deliverer: deliverer,
		recorder:  recorder,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandleFiring re-reads fresh state and either delivers the reminder,
// records a skipped attempt for an ended event, or drops the firing when
// the subscription no longer wants it. A returned error makes the runtime
// retry the firing, so delivery stays at-least-once.
func (h *FireHandler) HandleFiring(ctx context.Context, t runtime.Timer, f Firing) error {
	inst, err := h.instances.Describe(ctx, t.InstanceID)
	if err != nil {
		if errors.Is(err, runtime.ErrInstanceNotFound) {
			h.log.InfoContext(ctx, "reminder fired for retired instance, dropping",
				logger.EventID(f.EventID),
				logger.SubscriptionID(f.SubscriptionID),
			)
			return nil
		}
		return err
	}
	if inst.Ended() {
		h.recordSkipped(ctx, f)
		return nil
	}

	evt, err := h.dir.Event(ctx, f.EventID)
	if err != nil {
		return err
	}

	sub, err := h.dir.Subscription(ctx, f.SubscriptionID)
	if err != nil {
		return err
	}
	if !sub.Active {
		h.log.InfoContext(ctx, "reminder fired for deactivated subscription, dropping",
			logger.EventID(f.EventID),
			logger.SubscriptionID(f.SubscriptionID),
		)
		return nil
	}

	return h.deliverer.DeliverReminder(ctx, evt, sub, f.Offset)
}

// recordSkipped writes the skipped_event_ended attempt so the event's
// delivery report shows the reminder was considered and deliberately not
// sent. Recording is advisory; a failure is logged, not retried.
func (h *FireHandler) recordSkipped(ctx context.Context, f Firing) {
	att := delivery.Attempt{
		ID:             uuid.New(),
		EventID:        f.EventID,
		SubscriptionID: f.SubscriptionID,
		MessageKind:    delivery.KindReminder,
		Outcome:        delivery.OutcomeSkippedEventEnded,
		CreatedAt:      time.Now(),
	}
	if err := h.recorder.RecordAttempt(ctx, att); err != nil {
		h.log.ErrorContext(ctx, "failed to record skipped reminder attempt",
			logger.EventID(f.EventID),
			logger.SubscriptionID(f.SubscriptionID),
			logger.Error(err),
		)
		return
	}

	h.log.InfoContext(ctx, "reminder skipped, event already ended",
		logger.EventID(f.EventID),
		logger.SubscriptionID(f.SubscriptionID),
		logger.Outcome(string(delivery.OutcomeSkippedEventEnded)),
	)
}
