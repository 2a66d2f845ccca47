package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/pkg/logger"
)

// Worker polls the store for claimable signals and due timers and executes
// the handlers registered on the runtime. Several workers may share one
// store; claim locks keep them from processing the same item twice.
type Worker struct {
	rt       *Runtime
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex // serializes stopping flag with WaitGroup additions

	pullInterval time.Duration
	lockTimeout  time.Duration
	log          *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a worker bound to the runtime's store and handler
// registry.
func NewWorker(rt *Runtime, opts ...WorkerOption) (*Worker, error) {
	if rt == nil {
		return nil, ErrRuntimeNil
	}

	options := &workerOptions{
		pullInterval:  time.Second,
		lockTimeout:   time.Minute,
		maxConcurrent: 4,
	}
	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		rt:           rt,
		workerID:     id,
		sem:          make(chan struct{}, options.maxConcurrent),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		log:          rt.log.With(logger.Component("runtime.worker"), slog.String("worker_id", id.String())),
	}, nil
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	if w.rt.handlerCount() == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.log.Info("worker started", slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for in-flight handlers to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.log.Info("worker stopped")
	return nil
}

// Run returns a function suitable for errgroup: it starts the worker,
// blocks until the context is cancelled, then stops it.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.log.Error("failed to process work item", logger.Error(err))
					}
				}()
			default:
				w.log.Debug("all worker slots busy, skipping tick")
			}
		}
	}
}

// pullAndProcess claims at most one item, preferring signals over timers so
// ordered instance work drains before scheduled work.
func (w *Worker) pullAndProcess() error {
	sig, err := w.rt.store.ClaimSignal(w.ctx, w.workerID, w.lockTimeout)
	switch {
	case err == nil && sig != nil:
		return w.processSignal(sig)
	case err != nil && !errors.Is(err, ErrNoSignalToClaim):
		return fmt.Errorf("failed to claim signal: %w", err)
	}

	t, err := w.rt.store.ClaimTimer(w.ctx, w.workerID, w.lockTimeout)
	switch {
	case err == nil && t != nil:
		return w.processTimer(t)
	case err != nil && !errors.Is(err, ErrNoTimerToClaim):
		return fmt.Errorf("failed to claim timer: %w", err)
	}

	return nil
}

func (w *Worker) processSignal(sig *Signal) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in signal handler: %v", r)
			w.log.Error("signal handler panicked",
				logger.InstanceID(sig.InstanceID),
				logger.Signal(sig.Name),
				slog.Any("panic", r),
			)
			_ = w.handleSignalFailure(sig, retErr, time.Since(start))
		}
	}()

	inst, err := w.rt.store.Instance(w.ctx, sig.InstanceID)
	if err != nil {
		return w.handleSignalFailure(sig, fmt.Errorf("failed to load instance: %w", err), time.Since(start))
	}

	handler, ok := w.rt.instanceHandler(inst.Kind)
	if !ok {
		return w.parkSignalWithoutHandler(sig, inst.Kind)
	}

	// The handler context is detached from the worker lifecycle so graceful
	// shutdown lets in-flight signals finish. The lock timeout bounds it.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	res, err := handler.HandleSignal(ctx, *inst, *sig)
	duration := time.Since(start)
	if err != nil {
		return w.handleSignalFailure(sig, err, duration)
	}

	var endedAt *time.Time
	if res.End && inst.EndedAt == nil {
		now := time.Now()
		endedAt = &now
	}
	if err := w.rt.store.UpdateInstanceState(w.ctx, inst.ID, res.State, endedAt); err != nil {
		// The handler ran but the state was not saved. Fail the signal so it
		// is redelivered; handlers tolerate replays.
		return w.handleSignalFailure(sig, fmt.Errorf("failed to persist state: %w", err), duration)
	}

	if err := w.rt.store.CompleteSignal(w.ctx, sig.ID); err != nil {
		return fmt.Errorf("failed to mark signal %s as completed: %w", sig.ID, err)
	}

	w.log.Info("signal processed",
		logger.InstanceID(sig.InstanceID),
		logger.Signal(sig.Name),
		logger.State(res.State),
		logger.Duration(duration),
	)
	return nil
}

// parkSignalWithoutHandler parks signals whose instance kind has no
// registration. Retrying cannot help until the handler is deployed, and a
// parked signal keeps younger signals of the instance flowing.
func (w *Worker) parkSignalWithoutHandler(sig *Signal, kind string) error {
	w.log.Error("no handler registered for instance kind",
		logger.InstanceID(sig.InstanceID),
		logger.Signal(sig.Name),
		logger.Kind(kind),
	)
	if err := w.rt.store.ParkSignal(w.ctx, sig.ID, "no handler registered for kind: "+kind); err != nil {
		return fmt.Errorf("failed to park signal %s: %w", sig.ID, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) handleSignalFailure(sig *Signal, execErr error, duration time.Duration) error {
	w.log.Error("signal failed",
		logger.InstanceID(sig.InstanceID),
		logger.Signal(sig.Name),
		logger.Attempts(int(sig.Attempts)+1),
		slog.Int("max_attempts", int(sig.MaxAttempts)),
		logger.Duration(duration),
		logger.Error(execErr),
	)

	if err := w.rt.store.FailSignal(w.ctx, sig.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to record signal %s failure: %w", sig.ID, err)
	}

	if sig.Attempts+1 >= sig.MaxAttempts {
		w.log.Warn("signal parked after exhausting attempts",
			logger.InstanceID(sig.InstanceID),
			logger.Signal(sig.Name),
		)
	}
	return nil
}

func (w *Worker) processTimer(t *Timer) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in timer handler: %v", r)
			w.log.Error("timer handler panicked",
				logger.InstanceID(t.InstanceID),
				logger.Handler(t.Handler),
				slog.Any("panic", r),
			)
			_ = w.handleTimerFailure(t, retErr, time.Since(start))
		}
	}()

	handler, ok := w.rt.timerHandler(t.Handler)
	if !ok {
		w.log.Error("no handler registered for timer",
			logger.InstanceID(t.InstanceID),
			logger.Handler(t.Handler),
		)
		if err := w.rt.store.ParkTimer(w.ctx, t.ID, "no handler registered: "+t.Handler); err != nil {
			return fmt.Errorf("failed to park timer %s: %w", t.ID, err)
		}
		return ErrHandlerNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	err := handler.HandleTimer(ctx, *t)
	duration := time.Since(start)
	if err != nil {
		return w.handleTimerFailure(t, err, duration)
	}

	if err := w.rt.store.CompleteTimer(w.ctx, t.ID); err != nil {
		// The timer may have been rescheduled or cancelled while firing.
		if errors.Is(err, ErrNotProcessing) || errors.Is(err, ErrTimerNotFound) {
			w.log.Debug("timer changed while firing",
				logger.InstanceID(t.InstanceID),
				logger.Handler(t.Handler),
			)
			return nil
		}
		return fmt.Errorf("failed to mark timer %s as completed: %w", t.ID, err)
	}

	w.log.Info("timer fired",
		logger.InstanceID(t.InstanceID),
		logger.Handler(t.Handler),
		logger.Duration(duration),
	)
	return nil
}

func (w *Worker) handleTimerFailure(t *Timer, execErr error, duration time.Duration) error {
	w.log.Error("timer failed",
		logger.InstanceID(t.InstanceID),
		logger.Handler(t.Handler),
		logger.Attempts(int(t.Attempts)+1),
		slog.Int("max_attempts", int(t.MaxAttempts)),
		logger.Duration(duration),
		logger.Error(execErr),
	)

	if err := w.rt.store.FailTimer(w.ctx, t.ID, execErr.Error()); err != nil {
		if errors.Is(err, ErrNotProcessing) || errors.Is(err, ErrTimerNotFound) {
			return nil
		}
		return fmt.Errorf("failed to record timer %s failure: %w", t.ID, err)
	}

	if t.Attempts+1 >= t.MaxAttempts {
		w.log.Warn("timer parked after exhausting attempts",
			logger.InstanceID(t.InstanceID),
			logger.Handler(t.Handler),
		)
	}
	return nil
}
