package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/pypeaday/soonish-sub002/pkg/logger"
)

// DefaultJanitorInterval is how often the janitor sweeps the store.
const DefaultJanitorInterval = 30 * time.Second

// Janitor periodically releases expired claim locks and retires instances
// whose grace period elapsed. Exactly one janitor per store is enough, but
// running several is safe since both sweeps are idempotent.
type Janitor struct {
	rt       *Runtime
	interval time.Duration
	log      *slog.Logger
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithJanitorInterval overrides the sweep interval.
func WithJanitorInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.interval = d
		}
	}
}

// NewJanitor creates a janitor for the runtime's store.
func NewJanitor(rt *Runtime, opts ...JanitorOption) (*Janitor, error) {
	if rt == nil {
		return nil, ErrRuntimeNil
	}

	j := &Janitor{
		rt:       rt,
		interval: DefaultJanitorInterval,
		log:      rt.log.With(logger.Component("runtime.janitor")),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run returns a function suitable for errgroup: it sweeps on a ticker until
// the context is cancelled.
func (j *Janitor) Run(ctx context.Context) func() error {
	return func() error {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.log.Info("janitor started", slog.Duration("interval", j.interval))
		for {
			select {
			case <-ctx.Done():
				j.log.Info("janitor stopped")
				return nil
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}
}

// Sweep runs one expiry and retirement pass.
func (j *Janitor) Sweep(ctx context.Context) {
	if released, err := j.rt.store.ExpireLocks(ctx); err != nil {
		j.log.Error("failed to expire locks", logger.Error(err))
	} else if released > 0 {
		j.log.Warn("released expired locks", slog.Int("count", released))
	}

	cutoff := time.Now().Add(-j.rt.grace)
	if retired, err := j.rt.store.RetireInstances(ctx, cutoff); err != nil {
		j.log.Error("failed to retire instances", logger.Error(err))
	} else if retired > 0 {
		j.log.Info("retired ended instances", slog.Int("count", retired))
	}
}
