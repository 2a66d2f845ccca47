package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/runtime"
)

// HandlerWatch is the timer handler name for event window watches.
const HandlerWatch = "lifecycle.watch"

// Signaler appends signals to instances. Satisfied by *runtime.Runtime.
type Signaler interface {
	Signal(ctx context.Context, instanceID uuid.UUID, name string, payload any) error
}

// WatchHandler converts a fired watch timer into an event_elapsed signal,
// so the natural end travels through the same ordered pipeline as every
// other lifecycle change. Wire it with
// runtime.NewTimerHandler(lifecycle.HandlerWatch, h.HandleWatch).
type WatchHandler struct {
	dir      Directory
	timers   Timers
	signaler Signaler
	log      *slog.Logger
}

// WatchHandlerOption configures a WatchHandler.
type WatchHandlerOption func(*WatchHandler)

// WithWatchLogger sets the watch handler's logger.
func WithWatchLogger(log *slog.Logger) WatchHandlerOption {
	return func(h *WatchHandler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewWatchHandler wires the watch firing path.
func NewWatchHandler(dir Directory, timers Timers, signaler Signaler, opts ...WatchHandlerOption) (*WatchHandler, error) {
	if dir == nil || timers == nil || signaler == nil {
		return nil, ErrDependencyNil
	}

	h := &WatchHandler{
		dir:      dir,
		timers:   timers,
		signaler: signaler,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandleWatch checks the event's window against fresh state before
// declaring it elapsed. A fire that raced an update moving the window
// further out re-arms itself at the new end instead of ending the event
// early.
func (h *WatchHandler) HandleWatch(ctx context.Context, t runtime.Timer, p WatchPayload) error {
	evt, err := h.dir.Event(ctx, p.EventID)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	if end := evt.End(); end.After(time.Now()) {
		h.log.InfoContext(ctx, "watch fired before new window end, re-arming",
			logger.EventID(evt.ID),
			slog.Time("end", end),
		)
		if err := h.timers.UpsertTimer(ctx, t.InstanceID, WatchID(evt.ID), HandlerWatch, end, WatchPayload{EventID: evt.ID}); err != nil {
			return fmt.Errorf("failed to re-arm watch timer: %w", err)
		}
		return nil
	}

	err = h.signaler.Signal(ctx, t.InstanceID, SignalEventElapsed, nil)
	if err != nil {
		if errors.Is(err, runtime.ErrInstanceNotFound) || errors.Is(err, runtime.ErrInstanceRetired) {
			h.log.InfoContext(ctx, "watch fired for gone instance, dropping",
				logger.EventID(evt.ID),
			)
			return nil
		}
		return fmt.Errorf("failed to signal window end: %w", err)
	}
	return nil
}
