package soonish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/lifecycle"
	"github.com/pypeaday/soonish-sub002/notice"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/reminder"
	"github.com/pypeaday/soonish-sub002/runtime"
	"github.com/pypeaday/soonish-sub002/storage"
)

// DefaultReportTTL is how long a cached delivery report summary stays fresh
// when no new attempt invalidates it first.
const DefaultReportTTL = 30 * time.Second

// reportKeyPrefix namespaces report cache keys in Redis.
const reportKeyPrefix = "soonish:report:"

// ReportCache is the slice of the Redis client the delivery report cache
// uses. Satisfied by *redis.Client.
type ReportCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service is the application facade. It persists domain state, routes every
// lifecycle change through the event's ordered signal queue, and answers
// delivery queries. A single Service serves the whole process; all methods
// are safe for concurrent use.
type Service struct {
	store   storage.Store
	rt      *runtime.Runtime
	fanout  *delivery.Fanout
	catalog *notice.Catalog
	log     *slog.Logger

	cacheClient ReportCache
	cacheTTL    time.Duration
	fanoutOpts  []delivery.Option
}

// Service implements the notification callbacks the orchestration handlers
// are wired with.
var (
	_ lifecycle.Notifier = (*Service)(nil)
	_ reminder.Deliverer = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger shared by the service and the handlers it
// wires.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCatalog replaces the built-in notice catalog, typically with one
// merged from a YAML override file.
func WithCatalog(c *notice.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithReportCache serves delivery report summaries from Redis. A
// non-positive ttl keeps DefaultReportTTL.
func WithReportCache(client ReportCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheClient = client
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithFanoutOptions passes tuning options through to the fan-out engine.
func WithFanoutOptions(opts ...delivery.Option) Option {
	return func(s *Service) {
		s.fanoutOpts = append(s.fanoutOpts, opts...)
	}
}

// New wires the service: the fan-out engine over the store and the given
// transports, the reminder scheduler, and the lifecycle handlers, which are
// registered on the runtime. Workers polling the same runtime execute those
// handlers; New does not start any.
func New(store storage.Store, rt *runtime.Runtime, transports *delivery.Registry, opts ...Option) (*Service, error) {
	if store == nil || rt == nil || transports == nil {
		return nil, ErrDependencyNil
	}

	s := &Service{
		store:    store,
		rt:       rt,
		catalog:  notice.Default(),
		cacheTTL: DefaultReportTTL,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	fanoutOpts := append([]delivery.Option{delivery.WithLogger(s.log)}, s.fanoutOpts...)
	s.fanout = delivery.New(store, attemptRecorder{s}, transports, fanoutOpts...)

	scheduler, err := reminder.NewScheduler(rt, reminder.WithSchedulerLogger(s.log))
	if err != nil {
		return nil, err
	}

	orchestrator, err := lifecycle.NewOrchestrator(store, s, scheduler, rt, lifecycle.WithOrchestratorLogger(s.log))
	if err != nil {
		return nil, err
	}

	watch, err := lifecycle.NewWatchHandler(store, rt, rt, lifecycle.WithWatchLogger(s.log))
	if err != nil {
		return nil, err
	}

	fire, err := reminder.NewFireHandler(rt, store, s, attemptRecorder{s}, reminder.WithFireLogger(s.log))
	if err != nil {
		return nil, err
	}

	rt.RegisterInstanceHandler(orchestrator)
	rt.RegisterTimerHandler(runtime.NewTimerHandler(lifecycle.HandlerWatch, watch.HandleWatch))
	rt.RegisterTimerHandler(runtime.NewTimerHandler(reminder.HandlerName, fire.HandleFiring))

	return s, nil
}

// CreateEvent persists the event and starts its orchestration. The instance
// id is derived from the event id, so retrying after a partial failure
// converges on the same orchestration instead of forking a second one.
func (s *Service) CreateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	now := time.Now()
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = now
	}
	evt.UpdatedAt = now

	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}
	if err := s.store.CreateEvent(ctx, evt); err != nil {
		return event.Event{}, err
	}

	err := s.rt.Start(ctx, lifecycle.KindEvent, lifecycle.InstanceID(evt.ID), lifecycle.StateCreated, lifecycle.Input{EventID: evt.ID})
	if err != nil {
		return event.Event{}, fmt.Errorf("event %s stored but orchestration did not start: %w", evt.ID, err)
	}
	return evt, nil
}

// EventUpdate is a partial update of an event's mutable fields. Nil fields
// keep their current value; ClearEnd removes the window end, turning the
// event back into a point-in-time one.
type EventUpdate struct {
	Title       *string
	Description *string
	StartAt     *time.Time
	EndAt       *time.Time
	ClearEnd    bool
	Public      *bool
}

// apply returns the patched event, the human-readable names of the changed
// fields, and whether the start moved.
func (u EventUpdate) apply(evt event.Event) (event.Event, []string, bool) {
	var changed []string
	startChanged := false

	if u.Title != nil && *u.Title != evt.Title {
		evt.Title = *u.Title
		changed = append(changed, "title")
	}
	if u.Description != nil && *u.Description != evt.Description {
		evt.Description = *u.Description
		changed = append(changed, "description")
	}
	if u.StartAt != nil && !u.StartAt.Equal(evt.StartAt) {
		evt.StartAt = *u.StartAt
		changed = append(changed, "start time")
		startChanged = true
	}
	switch {
	case u.ClearEnd:
		if evt.EndAt != nil {
			evt.EndAt = nil
			changed = append(changed, "end time")
		}
	case u.EndAt != nil && (evt.EndAt == nil || !u.EndAt.Equal(*evt.EndAt)):
		end := *u.EndAt
		evt.EndAt = &end
		changed = append(changed, "end time")
	}
	if u.Public != nil && *u.Public != evt.Public {
		evt.Public = *u.Public
		changed = append(changed, "visibility")
	}

	return evt, changed, startChanged
}

// UpdateEvent applies a partial update and broadcasts the change to
// subscribers through the orchestrator, which also reschedules reminders
// when the start moved. An update that changes nothing sends nothing.
func (s *Service) UpdateEvent(ctx context.Context, eventID uuid.UUID, patch EventUpdate) (event.Event, error) {
	evt, err := s.store.Event(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}
	if err := s.assertLive(ctx, eventID); err != nil {
		return event.Event{}, err
	}

	updated, changed, startChanged := patch.apply(evt)
	if len(changed) == 0 {
		return evt, nil
	}
	updated.UpdatedAt = time.Now()

	if err := updated.Validate(); err != nil {
		return event.Event{}, err
	}
	if err := s.store.UpdateEvent(ctx, updated); err != nil {
		return event.Event{}, err
	}

	err = s.signal(ctx, eventID, lifecycle.SignalEventUpdated, lifecycle.Update{StartChanged: startChanged, Changed: changed})
	if err != nil {
		return event.Event{}, err
	}
	return updated, nil
}

// CancelEvent asks the orchestrator to cancel the event. The cancellation
// broadcast, reminder teardown and state change run through the instance's
// ordered signal queue, not here.
func (s *Service) CancelEvent(ctx context.Context, eventID uuid.UUID, reason string) error {
	if _, err := s.store.Event(ctx, eventID); err != nil {
		return err
	}
	if err := s.assertLive(ctx, eventID); err != nil {
		return err
	}
	return s.signal(ctx, eventID, lifecycle.SignalEventCancelled, lifecycle.Cancellation{Reason: reason})
}

// Notify sends a manual organizer note to the event's subscribers, narrowed
// to the given subscriptions when ids are passed.
func (s *Service) Notify(ctx context.Context, eventID uuid.UUID, subject, body string, subscriptionIDs ...uuid.UUID) error {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		return ErrNoteIncomplete
	}
	if _, err := s.store.Event(ctx, eventID); err != nil {
		return err
	}
	if err := s.assertLive(ctx, eventID); err != nil {
		return err
	}
	return s.signal(ctx, eventID, lifecycle.SignalOrganizerNote, lifecycle.Note{
		Subject:         subject,
		Body:            body,
		SubscriptionIDs: subscriptionIDs,
	})
}

// Subscribe creates an active subscription and hands it to the orchestrator,
// which arms the reminders and sends the welcome notice. Without explicit
// offsets the subscription uses event.DefaultOffsets.
func (s *Service) Subscribe(ctx context.Context, eventID, userID uuid.UUID, offsets ...time.Duration) (event.Subscription, error) {
	if _, err := s.store.Event(ctx, eventID); err != nil {
		return event.Subscription{}, err
	}
	if err := s.assertLive(ctx, eventID); err != nil {
		return event.Subscription{}, err
	}

	sub := event.Subscription{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    userID,
		Active:    true,
		Offsets:   offsets,
		CreatedAt: time.Now(),
	}
	if err := sub.Validate(); err != nil {
		return event.Subscription{}, err
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return event.Subscription{}, err
	}

	err := s.signal(ctx, eventID, lifecycle.SignalSubscriptionAdded, lifecycle.SubscriptionChange{SubscriptionID: sub.ID})
	if err != nil {
		return event.Subscription{}, err
	}
	return sub, nil
}

// Unsubscribe deactivates the subscription and cancels its reminders. The
// row is kept so past delivery attempts stay attributable. Unsubscribing
// from an event that already ended succeeds; there is nothing left to
// cancel.
func (s *Service) Unsubscribe(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.store.Subscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateSubscription(ctx, subscriptionID); err != nil {
		return err
	}

	err = s.signal(ctx, sub.EventID, lifecycle.SignalSubscriptionRemoved, lifecycle.SubscriptionChange{SubscriptionID: subscriptionID})
	if err != nil && !errors.Is(err, ErrEventEnded) && !errors.Is(err, runtime.ErrInstanceNotFound) {
		return err
	}
	return nil
}

// AddChannel registers a delivery channel for a user. The tag is folded so
// "Phone" and "phone" address the same group.
func (s *Service) AddChannel(ctx context.Context, ch event.Channel) (event.Channel, error) {
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	ch.Tag = event.NormalizeTag(ch.Tag)
	ch.Active = true
	now := time.Now()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now

	if err := ch.Validate(); err != nil {
		return event.Channel{}, err
	}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return event.Channel{}, err
	}
	return ch, nil
}

// DeactivateChannel retires a channel from future deliveries while keeping
// its attempt history readable. Deliveries resolve channels fresh, so the
// channel stops receiving from the next fan-out on.
func (s *Service) DeactivateChannel(ctx context.Context, id uuid.UUID) error {
	return s.store.DeactivateChannel(ctx, id)
}

// AddSelector attaches a routing rule to a subscription, built with
// event.ChannelSelector or event.TagSelector.
func (s *Service) AddSelector(ctx context.Context, sel event.Selector) (event.Selector, error) {
	if sel.ID == uuid.Nil {
		sel.ID = uuid.New()
	}
	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = time.Now()
	}
	sel.Tag = event.NormalizeTag(sel.Tag)

	if err := sel.Validate(); err != nil {
		return event.Selector{}, err
	}
	if err := s.store.AddSelector(ctx, sel); err != nil {
		return event.Selector{}, err
	}
	return sel, nil
}

// RemoveSelector detaches a routing rule from its subscription.
func (s *Service) RemoveSelector(ctx context.Context, id uuid.UUID) error {
	return s.store.RemoveSelector(ctx, id)
}

// Event returns one event.
func (s *Service) Event(ctx context.Context, id uuid.UUID) (event.Event, error) {
	return s.store.Event(ctx, id)
}

// EventsByOrganizer lists an organizer's events, newest first.
func (s *Service) EventsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]event.Event, error) {
	return s.store.EventsByOrganizer(ctx, organizerID)
}

// Subscription returns one subscription.
func (s *Service) Subscription(ctx context.Context, id uuid.UUID) (event.Subscription, error) {
	return s.store.Subscription(ctx, id)
}

// ChannelsForUser lists a user's channels, including deactivated ones.
func (s *Service) ChannelsForUser(ctx context.Context, userID uuid.UUID) ([]event.Channel, error) {
	return s.store.ChannelsForUser(ctx, userID)
}

// SelectorsForSubscription lists a subscription's routing rules.
func (s *Service) SelectorsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]event.Selector, error) {
	return s.store.SelectorsForSubscription(ctx, subscriptionID)
}

// EventStatus reports the orchestration state of the event: created, active
// or ended. Events whose instance was already retired report ended.
func (s *Service) EventStatus(ctx context.Context, eventID uuid.UUID) (string, error) {
	inst, err := s.rt.Describe(ctx, lifecycle.InstanceID(eventID))
	if err != nil {
		if errors.Is(err, runtime.ErrInstanceNotFound) {
			if _, evErr := s.store.Event(ctx, eventID); evErr != nil {
				return "", evErr
			}
			return lifecycle.StateEnded, nil
		}
		return "", err
	}
	return inst.State, nil
}

// DeliveryReport summarizes the event's delivery attempts. Summaries are
// served from a short-lived cache when one is configured; recording a new
// attempt invalidates the cached entry.
func (s *Service) DeliveryReport(ctx context.Context, eventID uuid.UUID) (delivery.Summary, error) {
	if _, err := s.store.Event(ctx, eventID); err != nil {
		return delivery.Summary{}, err
	}

	if sum, ok := s.reportFromCache(ctx, eventID); ok {
		return sum, nil
	}

	attempts, err := s.store.AttemptsForEvent(ctx, eventID)
	if err != nil {
		return delivery.Summary{}, err
	}
	sum := delivery.Summarize(eventID, attempts)
	s.cacheReport(ctx, eventID, sum)
	return sum, nil
}

// Attempts returns the event's full delivery attempt log in chronological
// order.
func (s *Service) Attempts(ctx context.Context, eventID uuid.UUID) ([]delivery.Attempt, error) {
	if _, err := s.store.Event(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.AttemptsForEvent(ctx, eventID)
}

// UpcomingReminder is one armed reminder registration.
type UpcomingReminder struct {
	SubscriptionID uuid.UUID     `json:"subscription_id"`
	Offset         time.Duration `json:"offset"`
	FireAt         time.Time     `json:"fire_at"`
}

// UpcomingReminders lists the reminder registrations still armed for the
// event, soonest first.
func (s *Service) UpcomingReminders(ctx context.Context, eventID uuid.UUID) ([]UpcomingReminder, error) {
	if _, err := s.store.Event(ctx, eventID); err != nil {
		return nil, err
	}

	timers, err := s.rt.Timers(ctx, lifecycle.InstanceID(eventID))
	if err != nil {
		return nil, err
	}

	upcoming := make([]UpcomingReminder, 0, len(timers))
	for _, t := range timers {
		if t.Handler != reminder.HandlerName || t.Status != runtime.StatusPending {
			continue
		}
		var f reminder.Firing
		if err := json.Unmarshal(t.Payload, &f); err != nil {
			continue
		}
		upcoming = append(upcoming, UpcomingReminder{
			SubscriptionID: f.SubscriptionID,
			Offset:         f.Offset,
			FireAt:         t.FireAt,
		})
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].FireAt.Before(upcoming[j].FireAt) })
	return upcoming, nil
}

// EventCreated implements lifecycle.Notifier. The organizer gets the
// creation confirmation on their active channels.
func (s *Service) EventCreated(ctx context.Context, evt event.Event) error {
	rep, err := s.fanout.Organizer(ctx, evt, s.catalog.EventCreated(evt))
	return s.finishReport(ctx, rep, err)
}

// Welcome implements lifecycle.Notifier.
func (s *Service) Welcome(ctx context.Context, evt event.Event, sub event.Subscription) error {
	rep, err := s.fanout.Personal(ctx, evt, sub.ID, s.catalog.Welcome(evt))
	return s.finishReport(ctx, rep, err)
}

// EventUpdated implements lifecycle.Notifier.
func (s *Service) EventUpdated(ctx context.Context, evt event.Event, changed []string) error {
	rep, err := s.fanout.Broadcast(ctx, evt, s.catalog.EventUpdated(evt, changed))
	return s.finishReport(ctx, rep, err)
}

// EventCancelled implements lifecycle.Notifier.
func (s *Service) EventCancelled(ctx context.Context, evt event.Event, reason string) error {
	rep, err := s.fanout.Broadcast(ctx, evt, s.catalog.EventCancelled(evt, reason))
	return s.finishReport(ctx, rep, err)
}

// OrganizerNote implements lifecycle.Notifier.
func (s *Service) OrganizerNote(ctx context.Context, evt event.Event, note lifecycle.Note) error {
	var opts []delivery.SendOption
	if len(note.SubscriptionIDs) > 0 {
		opts = append(opts, delivery.WithSubscriptions(note.SubscriptionIDs...))
	}
	rep, err := s.fanout.Broadcast(ctx, evt, s.catalog.OrganizerNote(evt, note.Subject, note.Body), opts...)
	return s.finishReport(ctx, rep, err)
}

// DeliverReminder implements reminder.Deliverer.
func (s *Service) DeliverReminder(ctx context.Context, evt event.Event, sub event.Subscription, offset time.Duration) error {
	rep, err := s.fanout.Personal(ctx, evt, sub.ID, s.catalog.Reminder(evt, offset))
	return s.finishReport(ctx, rep, err)
}

// finishReport logs a completed fan-out. Per-channel failures live in the
// attempt log; only audience read failures propagate, which makes the
// runtime retry the triggering signal or timer.
func (s *Service) finishReport(ctx context.Context, rep *delivery.Report, err error) error {
	if err != nil {
		return err
	}
	counts := rep.Counts()
	s.log.InfoContext(ctx, "fan-out finished",
		logger.EventID(rep.EventID),
		slog.String("message_kind", rep.MessageKind),
		slog.Int("sent", counts[delivery.OutcomeSent]),
		slog.Int("failed", counts[delivery.OutcomeFailed]+counts[delivery.OutcomePermanentlyFailed]),
		slog.Int("pending", counts[delivery.OutcomePending]),
		logger.Duration(rep.Duration),
	)
	return nil
}

// signal appends a lifecycle signal to the event's instance, translating
// runtime retirement into ErrEventEnded.
func (s *Service) signal(ctx context.Context, eventID uuid.UUID, name string, payload any) error {
	err := s.rt.Signal(ctx, lifecycle.InstanceID(eventID), name, payload)
	if errors.Is(err, runtime.ErrInstanceRetired) {
		return fmt.Errorf("%w: %s", ErrEventEnded, eventID)
	}
	return err
}

// assertLive rejects operations on events whose orchestration has ended.
// An ended instance would absorb the signal as a no-op; failing fast here
// tells the caller instead of silently dropping their request. The check
// races concurrent endings, which is fine: the orchestrator's own ended
// check catches whatever slips through.
func (s *Service) assertLive(ctx context.Context, eventID uuid.UUID) error {
	inst, err := s.rt.Describe(ctx, lifecycle.InstanceID(eventID))
	if err != nil {
		if errors.Is(err, runtime.ErrInstanceNotFound) {
			// The event row exists but its instance is gone: retired.
			return fmt.Errorf("%w: %s", ErrEventEnded, eventID)
		}
		return err
	}
	if inst.Ended() {
		return fmt.Errorf("%w: %s", ErrEventEnded, eventID)
	}
	return nil
}

// attemptRecorder persists attempts and drops the event's cached report so
// the next DeliveryReport read reflects the new attempt.
type attemptRecorder struct {
	s *Service
}

func (r attemptRecorder) RecordAttempt(ctx context.Context, a delivery.Attempt) error {
	if err := r.s.store.RecordAttempt(ctx, a); err != nil {
		return err
	}
	r.s.invalidateReport(ctx, a.EventID)
	return nil
}

func reportKey(eventID uuid.UUID) string {
	return reportKeyPrefix + eventID.String()
}

func (s *Service) reportFromCache(ctx context.Context, eventID uuid.UUID) (delivery.Summary, bool) {
	if s.cacheClient == nil {
		return delivery.Summary{}, false
	}

	data, err := s.cacheClient.Get(ctx, reportKey(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.WarnContext(ctx, "report cache read failed",
				logger.EventID(eventID),
				logger.Error(err),
			)
		}
		return delivery.Summary{}, false
	}

	var sum delivery.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return delivery.Summary{}, false
	}
	return sum, true
}

// cacheReport and invalidateReport are best effort: a cache outage degrades
// report reads to the store, never fails them.
func (s *Service) cacheReport(ctx context.Context, eventID uuid.UUID, sum delivery.Summary) {
	if s.cacheClient == nil {
		return
	}

	data, err := json.Marshal(sum)
	if err != nil {
		return
	}
	if err := s.cacheClient.Set(ctx, reportKey(eventID), data, s.cacheTTL).Err(); err != nil {
		s.log.WarnContext(ctx, "report cache write failed",
			logger.EventID(eventID),
			logger.Error(err),
		)
	}
}

func (s *Service) invalidateReport(ctx context.Context, eventID uuid.UUID) {
	if s.cacheClient == nil {
		return
	}
	if err := s.cacheClient.Del(ctx, reportKey(eventID)).Err(); err != nil {
		s.log.WarnContext(ctx, "report cache invalidation failed",
			logger.EventID(eventID),
			logger.Error(err),
		)
	}
}
