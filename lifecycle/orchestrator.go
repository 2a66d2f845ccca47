package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/runtime"
)

type (
	// Directory loads fresh domain state while a signal is processed.
	// Signals carry ids, never snapshots, so the orchestrator always acts
	// on current data.
	Directory interface {
		Event(ctx context.Context, id uuid.UUID) (event.Event, error)
		Subscription(ctx context.Context, id uuid.UUID) (event.Subscription, error)
	}

	// Notifier sends lifecycle notices. The service facade implements it on
	// top of the fan-out engine; delivery failures are recorded as attempt
	// outcomes there and do not surface here.
	Notifier interface {
		EventCreated(ctx context.Context, evt event.Event) error
		Welcome(ctx context.Context, evt event.Event, sub event.Subscription) error
		EventUpdated(ctx context.Context, evt event.Event, changed []string) error
		EventCancelled(ctx context.Context, evt event.Event, reason string) error
		OrganizerNote(ctx context.Context, evt event.Event, note Note) error
	}

	// Reminders arms and moves reminder registrations. Satisfied by
	// *reminder.Scheduler.
	Reminders interface {
		Register(ctx context.Context, instanceID uuid.UUID, evt event.Event, sub event.Subscription) error
		Reschedule(ctx context.Context, instanceID uuid.UUID, evt event.Event) error
		Cancel(ctx context.Context, instanceID uuid.UUID, subscriptionID uuid.UUID) error
		CancelAll(ctx context.Context, instanceID uuid.UUID) error
	}

	// Timers manages the watch timer. Satisfied by *runtime.Runtime.
	Timers interface {
		UpsertTimer(ctx context.Context, instanceID uuid.UUID, id uuid.UUID, handler string, fireAt time.Time, payload any) error
		CancelTimer(ctx context.Context, id uuid.UUID) error
	}
)

// Orchestrator is the instance handler for event lifecycles. All signal
// processing is idempotent: redelivered signals re-arm the same timers and
// re-send at-least-once notices.
type Orchestrator struct {
	dir       Directory
	notifier  Notifier
	reminders Reminders
	timers    Timers
	log       *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the orchestrator's logger.
func WithOrchestratorLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// NewOrchestrator wires the lifecycle handler.
func NewOrchestrator(dir Directory, notifier Notifier, reminders Reminders, timers Timers, opts ...OrchestratorOption) (*Orchestrator, error) {
	if dir == nil || notifier == nil || reminders == nil || timers == nil {
		return nil, ErrDependencyNil
	}

	o := &Orchestrator{
		dir:       dir,
		notifier:  notifier,
		reminders: reminders,
		timers:    timers,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Kind implements runtime.InstanceHandler.
func (o *Orchestrator) Kind() string { return KindEvent }

// HandleSignal applies one signal to the event's state machine. A returned
// error makes the runtime retry the signal and eventually park it; the
// instance's younger signals keep flowing either way.
func (o *Orchestrator) HandleSignal(ctx context.Context, inst runtime.Instance, sig runtime.Signal) (runtime.Result, error) {
	if inst.Ended() {
		o.log.InfoContext(ctx, "signal ignored, event already ended",
			logger.InstanceID(inst.ID),
			logger.Signal(sig.Name),
		)
		return runtime.Result{State: inst.State}, nil
	}

	switch sig.Name {
	case runtime.StartSignalName:
		return o.onStart(ctx, inst)
	case SignalSubscriptionAdded:
		return o.onSubscriptionAdded(ctx, inst, sig)
	case SignalSubscriptionRemoved:
		return o.onSubscriptionRemoved(ctx, inst, sig)
	case SignalEventUpdated:
		return o.onEventUpdated(ctx, inst, sig)
	case SignalOrganizerNote:
		return o.onOrganizerNote(ctx, inst, sig)
	case SignalEventCancelled:
		return o.onEventCancelled(ctx, inst, sig)
	case SignalEventElapsed:
		return o.onEventElapsed(ctx, inst)
	default:
		o.log.WarnContext(ctx, "unknown signal, ignoring",
			logger.InstanceID(inst.ID),
			logger.Signal(sig.Name),
		)
		return runtime.Result{State: inst.State}, nil
	}
}

// onStart activates the event: the watch timer is armed at the window end
// and the organizer gets the creation confirmation. The start signal is
// always the first one processed, so no other signal can observe the
// created state.
func (o *Orchestrator) onStart(ctx context.Context, inst runtime.Instance) (runtime.Result, error) {
	evt, err := o.loadEvent(ctx, inst)
	if err != nil {
		return runtime.Result{}, err
	}

	if err := o.armWatch(ctx, inst.ID, evt); err != nil {
		return runtime.Result{}, err
	}

	if err := o.notifier.EventCreated(ctx, evt); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to send creation confirmation: %w", err)
	}

	o.log.InfoContext(ctx, "event activated",
		logger.EventID(evt.ID),
		logger.State(StateActive),
	)
	return runtime.Result{State: StateActive}, nil
}

func (o *Orchestrator) onSubscriptionAdded(ctx context.Context, inst runtime.Instance, sig runtime.Signal) (runtime.Result, error) {
	change, err := decode[SubscriptionChange](sig.Payload)
	if err != nil {
		return runtime.Result{}, err
	}

	sub, err := o.dir.Subscription(ctx, change.SubscriptionID)
	if err != nil {
		return runtime.Result{}, fmt.Errorf("failed to load subscription: %w", err)
	}
	if !sub.Active {
		// Unsubscribed before the signal was processed.
		o.log.InfoContext(ctx, "subscription deactivated before processing, skipping",
			logger.SubscriptionID(sub.ID),
		)
		return runtime.Result{State: StateActive}, nil
	}

	evt, err := o.loadEvent(ctx, inst)
	if err != nil {
		return runtime.Result{}, err
	}

	if err := o.reminders.Register(ctx, inst.ID, evt, sub); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to register reminders: %w", err)
	}

	if err := o.notifier.Welcome(ctx, evt, sub); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to send welcome: %w", err)
	}

	return runtime.Result{State: StateActive}, nil
}

func (o *Orchestrator) onSubscriptionRemoved(ctx context.Context, inst runtime.Instance, sig runtime.Signal) (runtime.Result, error) {
	change, err := decode[SubscriptionChange](sig.Payload)
	if err != nil {
		return runtime.Result{}, err
	}

	if err := o.reminders.Cancel(ctx, inst.ID, change.SubscriptionID); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to cancel reminders: %w", err)
	}

	return runtime.Result{State: StateActive}, nil
}

func (o *Orchestrator) onEventUpdated(ctx context.Context, inst runtime.Instance, sig runtime.Signal) (runtime.Result, error) {
	upd, err := decode[Update](sig.Payload)
	if err != nil {
		return runtime.Result{}, err
	}

	evt, err := o.loadEvent(ctx, inst)
	if err != nil {
		return runtime.Result{}, err
	}

	// The window end may have moved even when the start did not, so the
	// watch timer is re-armed on every update.
	if err := o.armWatch(ctx, inst.ID, evt); err != nil {
		return runtime.Result{}, err
	}

	if upd.StartChanged {
		if err := o.reminders.Reschedule(ctx, inst.ID, evt); err != nil {
			return runtime.Result{}, fmt.Errorf("failed to reschedule reminders: %w", err)
		}
	}

	if err := o.notifier.EventUpdated(ctx, evt, upd.Changed); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to broadcast update: %w", err)
	}

	return runtime.Result{State: StateActive}, nil
}

func (o *Orchestrator) onOrganizerNote(ctx context.Context, inst runtime.Instance, sig runtime.Signal) (runtime.Result, error) {
	note, err := decode[Note](sig.Payload)
	if err != nil {
		return runtime.Result{}, err
	}

	evt, err := o.loadEvent(ctx, inst)
	if err != nil {
		return runtime.Result{}, err
	}

	if err := o.notifier.OrganizerNote(ctx, evt, note); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to broadcast organizer note: %w", err)
	}

	return runtime.Result{State: StateActive}, nil
}

// onEventCancelled notifies subscribers first and only then moves to the
// end state: if the broadcast fails the signal is retried with the event
// still active.
func (o *Orchestrator) onEventCancelled(ctx context.Context, inst runtime.Instance, sig runtime.Signal) (runtime.Result, error) {
	cancellation, err := decode[Cancellation](sig.Payload)
	if err != nil {
		return runtime.Result{}, err
	}

	evt, err := o.loadEvent(ctx, inst)
	if err != nil {
		return runtime.Result{}, err
	}

	if err := o.notifier.EventCancelled(ctx, evt, cancellation.Reason); err != nil {
		return runtime.Result{}, fmt.Errorf("failed to broadcast cancellation: %w", err)
	}

	if err := o.teardown(ctx, inst.ID, evt.ID); err != nil {
		return runtime.Result{}, err
	}

	o.log.InfoContext(ctx, "event cancelled",
		logger.EventID(evt.ID),
		logger.State(StateEnded),
	)
	return runtime.Result{State: StateEnded, End: true}, nil
}

func (o *Orchestrator) onEventElapsed(ctx context.Context, inst runtime.Instance) (runtime.Result, error) {
	evt, err := o.loadEvent(ctx, inst)
	if err != nil {
		return runtime.Result{}, err
	}

	if err := o.teardown(ctx, inst.ID, evt.ID); err != nil {
		return runtime.Result{}, err
	}

	o.log.InfoContext(ctx, "event window elapsed",
		logger.EventID(evt.ID),
		logger.State(StateEnded),
	)
	return runtime.Result{State: StateEnded, End: true}, nil
}

// teardown cancels outstanding reminder registrations and the watch timer.
// Reminders that already fired are untouched; the ones still armed would
// only produce skipped attempts after this point.
func (o *Orchestrator) teardown(ctx context.Context, instanceID, eventID uuid.UUID) error {
	if err := o.reminders.CancelAll(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to cancel reminders: %w", err)
	}
	if err := o.timers.CancelTimer(ctx, WatchID(eventID)); err != nil {
		return fmt.Errorf("failed to cancel watch timer: %w", err)
	}
	return nil
}

func (o *Orchestrator) armWatch(ctx context.Context, instanceID uuid.UUID, evt event.Event) error {
	err := o.timers.UpsertTimer(ctx, instanceID, WatchID(evt.ID), HandlerWatch, evt.End(), WatchPayload{EventID: evt.ID})
	if err != nil {
		return fmt.Errorf("failed to arm watch timer: %w", err)
	}
	return nil
}

func (o *Orchestrator) loadEvent(ctx context.Context, inst runtime.Instance) (event.Event, error) {
	input, err := decode[Input](inst.Input)
	if err != nil {
		return event.Event{}, err
	}
	if input.EventID == uuid.Nil {
		return event.Event{}, fmt.Errorf("%w: missing event id", ErrBadPayload)
	}

	evt, err := o.dir.Event(ctx, input.EventID)
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to load event: %w", err)
	}
	return evt, nil
}

func decode[T any](payload []byte) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}
