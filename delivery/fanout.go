package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
)

// Fanout dispatches notifications to the resolved channels of an audience.
// Zero value is not usable; use New.
type Fanout struct {
	dir        Directory
	rec        Recorder
	transports *Registry
	log        *slog.Logger

	maxConcurrent int
	maxTries      int
	backoff       BackoffStrategy
	breakers      *breakerSet
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(f *Fanout) {
		if log != nil {
			f.log = log
		}
	}
}

// WithMaxConcurrent bounds concurrent transport calls across the whole
// fan-out invocation.
func WithMaxConcurrent(n int) Option {
	return func(f *Fanout) {
		if n > 0 {
			f.maxConcurrent = n
		}
	}
}

// WithMaxTries sets the transport call budget per channel attempt.
func WithMaxTries(n int) Option {
	return func(f *Fanout) {
		if n > 0 {
			f.maxTries = n
		}
	}
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(strategy BackoffStrategy) Option {
	return func(f *Fanout) {
		if strategy != nil {
			f.backoff = strategy
		}
	}
}

// WithBreakerConfig tunes the per-channel circuit breakers.
func WithBreakerConfig(failureThreshold, successThreshold int, recoveryTimeout time.Duration) Option {
	return func(f *Fanout) {
		f.breakers = newBreakerSet(failureThreshold, successThreshold, recoveryTimeout)
	}
}

// New creates a Fanout. The recorder may be nil, in which case attempts land
// only in the returned Report.
func New(dir Directory, rec Recorder, transports *Registry, opts ...Option) *Fanout {
	f := &Fanout{
		dir:           dir,
		rec:           rec,
		transports:    transports,
		log:           slog.Default(),
		maxConcurrent: 8,
		maxTries:      3,
		backoff:       DefaultBackoffStrategy(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.breakers == nil {
		f.breakers = newBreakerSet(0, 0, 0)
	}

	return f
}

type sendOptions struct {
	only map[uuid.UUID]struct{}
}

// SendOption configures a single fan-out invocation.
type SendOption func(*sendOptions)

// WithSubscriptions narrows a broadcast to the given subscription ids. Ids
// that are not active subscriptions of the event are ignored.
func WithSubscriptions(ids ...uuid.UUID) SendOption {
	return func(o *sendOptions) {
		if len(ids) == 0 {
			return
		}
		if o.only == nil {
			o.only = make(map[uuid.UUID]struct{}, len(ids))
		}
		for _, id := range ids {
			o.only[id] = struct{}{}
		}
	}
}

// Broadcast delivers msg to every active subscription of the event. The
// returned error covers only audience reads; per-recipient failures are
// isolated into the Report.
func (f *Fanout) Broadcast(ctx context.Context, ev event.Event, msg Message, opts ...SendOption) (*Report, error) {
	options := &sendOptions{}
	for _, opt := range opts {
		opt(options)
	}

	subs, err := f.dir.ActiveSubscriptions(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for event %s: %w", ev.ID, err)
	}

	if options.only != nil {
		kept := subs[:0]
		for _, sub := range subs {
			if _, ok := options.only[sub.ID]; ok {
				kept = append(kept, sub)
			}
		}
		subs = kept
	}

	rep := newReport(ev.ID, msg.Kind)
	sem := make(chan struct{}, f.maxConcurrent)

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub event.Subscription) {
			defer wg.Done()
			f.deliverSubscription(ctx, ev, sub, msg, rep, sem)
		}(sub)
	}
	wg.Wait()

	rep.Duration = time.Since(rep.StartedAt)
	return rep, nil
}

// Personal delivers msg to a single subscription. An inactive subscription
// yields an empty report, not an error; a missing one is an error since the
// caller addressed it explicitly.
func (f *Fanout) Personal(ctx context.Context, ev event.Event, subscriptionID uuid.UUID, msg Message) (*Report, error) {
	sub, err := f.dir.Subscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %s: %w", subscriptionID, err)
	}

	rep := newReport(ev.ID, msg.Kind)

	if !sub.Active {
		f.log.InfoContext(ctx, "skipping delivery to inactive subscription",
			logger.EventID(ev.ID),
			logger.SubscriptionID(sub.ID),
		)
		rep.Duration = time.Since(rep.StartedAt)
		return rep, nil
	}

	sem := make(chan struct{}, f.maxConcurrent)
	f.deliverSubscription(ctx, ev, sub, msg, rep, sem)

	rep.Duration = time.Since(rep.StartedAt)
	return rep, nil
}

// Organizer delivers msg to every active channel of the event's organizer.
// Used for creation confirmations, where no subscription exists yet; attempts
// carry a nil subscription id.
func (f *Fanout) Organizer(ctx context.Context, ev event.Event, msg Message) (*Report, error) {
	channels, err := f.dir.ChannelsForUser(ctx, ev.OrganizerID)
	if err != nil {
		return nil, fmt.Errorf("list channels for organizer %s: %w", ev.OrganizerID, err)
	}

	active := channels[:0]
	for _, ch := range channels {
		if ch.Active {
			active = append(active, ch)
		}
	}

	rep := newReport(ev.ID, msg.Kind)

	if len(active) == 0 {
		f.record(ctx, rep, Attempt{
			EventID:     ev.ID,
			MessageKind: msg.Kind,
			Outcome:     OutcomePending,
		})
		rep.Duration = time.Since(rep.StartedAt)
		return rep, nil
	}

	sem := make(chan struct{}, f.maxConcurrent)
	f.deliverChannels(ctx, ev, uuid.Nil, active, msg, rep, sem)

	rep.Duration = time.Since(rep.StartedAt)
	return rep, nil
}

// deliverSubscription resolves one subscription's selectors and dispatches to
// the resulting channels. Directory failures are converted into a failed
// attempt so the rest of the audience is unaffected.
func (f *Fanout) deliverSubscription(ctx context.Context, ev event.Event, sub event.Subscription, msg Message, rep *Report, sem chan struct{}) {
	selectors, err := f.dir.SelectorsForSubscription(ctx, sub.ID)
	if err != nil {
		f.recordResolveFailure(ctx, ev, sub, msg, rep, err)
		return
	}

	channels, err := f.dir.ChannelsForUser(ctx, sub.UserID)
	if err != nil {
		f.recordResolveFailure(ctx, ev, sub, msg, rep, err)
		return
	}

	res := Resolve(sub, selectors, channels)

	for _, gap := range res.Gaps {
		f.log.WarnContext(ctx, "selector resolution gap",
			logger.EventID(ev.ID),
			logger.SubscriptionID(sub.ID),
			logger.ChannelID(gap.ChannelID),
			slog.String("tag", gap.Tag),
			slog.String("reason", string(gap.Reason)),
		)
	}
	rep.addGaps(res.Gaps)

	if len(res.Channels) == 0 {
		f.record(ctx, rep, Attempt{
			EventID:        ev.ID,
			SubscriptionID: sub.ID,
			MessageKind:    msg.Kind,
			Outcome:        OutcomePending,
		})
		return
	}

	f.deliverChannels(ctx, ev, sub.ID, res.Channels, msg, rep, sem)
}

func (f *Fanout) recordResolveFailure(ctx context.Context, ev event.Event, sub event.Subscription, msg Message, rep *Report, err error) {
	f.log.ErrorContext(ctx, "failed to resolve delivery audience",
		logger.EventID(ev.ID),
		logger.SubscriptionID(sub.ID),
		logger.Error(err),
	)
	f.record(ctx, rep, Attempt{
		EventID:        ev.ID,
		SubscriptionID: sub.ID,
		MessageKind:    msg.Kind,
		Outcome:        OutcomeFailed,
		Error:          fmt.Sprintf("resolve audience: %v", err),
	})
}

func (f *Fanout) deliverChannels(ctx context.Context, ev event.Event, subscriptionID uuid.UUID, channels []event.Channel, msg Message, rep *Report, sem chan struct{}) {
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		sem <- struct{}{}
		go func(ch event.Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			a := f.attempt(ctx, ch, msg)
			a.EventID = ev.ID
			a.SubscriptionID = subscriptionID
			a.MessageKind = msg.Kind
			f.record(ctx, rep, a)
		}(ch)
	}
	wg.Wait()
}

// attempt delivers msg to one channel with retries. Every path ends in
// exactly one terminal outcome.
func (f *Fanout) attempt(ctx context.Context, ch event.Channel, msg Message) Attempt {
	start := time.Now()
	a := Attempt{
		ChannelID:   &ch.ID,
		ChannelKind: ch.Kind,
	}

	transport, err := f.transports.Lookup(ch.Kind)
	if err != nil {
		a.Outcome = OutcomePermanentlyFailed
		a.Error = fmt.Sprintf("%v: %s", err, ch.Kind)
		a.Duration = time.Since(start)
		return a
	}

	br := f.breakers.forChannel(ch.ID)
	if !br.Allow() {
		a.Outcome = OutcomeFailed
		a.Error = ErrCircuitOpen.Error()
		a.Duration = time.Since(start)
		return a
	}

	var lastErr error
	for try := 1; try <= f.maxTries; try++ {
		if try > 1 {
			select {
			case <-ctx.Done():
				a.Outcome = OutcomeFailed
				a.Error = ctx.Err().Error()
				a.Duration = time.Since(start)
				return a
			case <-time.After(f.backoff.NextInterval(try - 1)):
			}
		}

		err := transport.Send(ctx, ch, msg)
		a.Tries = try

		if err == nil {
			br.RecordSuccess()
			a.Outcome = OutcomeSent
			a.Duration = time.Since(start)
			return a
		}

		br.RecordFailure()
		lastErr = err

		// Permanent failures exit the retry loop immediately.
		if errors.Is(err, ErrPermanent) {
			a.Outcome = OutcomePermanentlyFailed
			a.Error = err.Error()
			a.Duration = time.Since(start)
			return a
		}
	}

	a.Outcome = OutcomeFailed
	a.Error = lastErr.Error()
	a.Duration = time.Since(start)
	return a
}

// record assigns identity to an attempt, folds it into the report, and
// persists it. Persistence failures are logged, never raised.
func (f *Fanout) record(ctx context.Context, rep *Report, a Attempt) {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	rep.add(a)

	if f.rec == nil {
		return
	}
	if err := f.rec.RecordAttempt(ctx, a); err != nil {
		f.log.ErrorContext(ctx, "failed to record delivery attempt",
			logger.EventID(a.EventID),
			logger.SubscriptionID(a.SubscriptionID),
			logger.Outcome(string(a.Outcome)),
			logger.Error(err),
		)
	}
}
