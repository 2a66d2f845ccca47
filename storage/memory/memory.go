// Package memory implements storage.Store in memory for tests and
// single-process development. Everything lives under one mutex and every
// read returns a copy, so callers can hold results across store mutations.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/storage"
)

// Store holds all domain records in maps with insertion-order indexes.
type Store struct {
	mu sync.RWMutex

	events        map[uuid.UUID]*event.Event
	channels      map[uuid.UUID]*event.Channel
	subscriptions map[uuid.UUID]*event.Subscription
	selectors     map[uuid.UUID]*event.Selector
	attempts      map[uuid.UUID][]delivery.Attempt

	channelsByUser map[uuid.UUID][]uuid.UUID
	subsByEvent    map[uuid.UUID][]uuid.UUID
	selectorsBySub map[uuid.UUID][]uuid.UUID
}

var (
	_ storage.Store      = (*Store)(nil)
	_ delivery.Directory = (*Store)(nil)
	_ delivery.Recorder  = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		events:         make(map[uuid.UUID]*event.Event),
		channels:       make(map[uuid.UUID]*event.Channel),
		subscriptions:  make(map[uuid.UUID]*event.Subscription),
		selectors:      make(map[uuid.UUID]*event.Selector),
		attempts:       make(map[uuid.UUID][]delivery.Attempt),
		channelsByUser: make(map[uuid.UUID][]uuid.UUID),
		subsByEvent:    make(map[uuid.UUID][]uuid.UUID),
		selectorsBySub: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *Store) CreateEvent(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[evt.ID]; exists {
		return storage.ErrEventExists
	}

	stored := copyEvent(&evt)
	s.events[evt.ID] = &stored
	return nil
}

func (s *Store) UpdateEvent(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.events[evt.ID]
	if !exists {
		return storage.ErrEventNotFound
	}

	existing.Title = evt.Title
	existing.Description = evt.Description
	existing.StartAt = evt.StartAt
	existing.EndAt = cloneTime(evt.EndAt)
	existing.Public = evt.Public
	existing.UpdatedAt = evt.UpdatedAt
	return nil
}

func (s *Store) Event(_ context.Context, id uuid.UUID) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, exists := s.events[id]
	if !exists {
		return event.Event{}, storage.ErrEventNotFound
	}
	return copyEvent(evt), nil
}

func (s *Store) EventsByOrganizer(_ context.Context, organizerID uuid.UUID) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, evt := range s.events {
		if evt.OrganizerID == organizerID {
			out = append(out, copyEvent(evt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateChannel(_ context.Context, ch event.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[ch.ID]; exists {
		return storage.ErrDuplicateChannel
	}
	for _, id := range s.channelsByUser[ch.UserID] {
		existing := s.channels[id]
		if existing.Active && existing.Target == ch.Target && existing.Tag == ch.Tag {
			return storage.ErrDuplicateChannel
		}
	}

	stored := copyChannel(&ch)
	s.channels[ch.ID] = &stored
	s.channelsByUser[ch.UserID] = append(s.channelsByUser[ch.UserID], ch.ID)
	return nil
}

func (s *Store) Channel(_ context.Context, id uuid.UUID) (event.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, exists := s.channels[id]
	if !exists {
		return event.Channel{}, storage.ErrChannelNotFound
	}
	return copyChannel(ch), nil
}

func (s *Store) ChannelsForUser(_ context.Context, userID uuid.UUID) ([]event.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.channelsByUser[userID]
	out := make([]event.Channel, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyChannel(s.channels[id]))
	}
	return out, nil
}

func (s *Store) DeactivateChannel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, exists := s.channels[id]
	if !exists {
		return storage.ErrChannelNotFound
	}
	if !ch.Active {
		return nil
	}

	now := time.Now()
	ch.Active = false
	ch.DeactivatedAt = &now
	ch.UpdatedAt = now
	return nil
}

func (s *Store) CreateSubscription(_ context.Context, sub event.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[sub.EventID]; !exists {
		return storage.ErrEventNotFound
	}
	if _, exists := s.subscriptions[sub.ID]; exists {
		return storage.ErrDuplicateSubscription
	}
	for _, id := range s.subsByEvent[sub.EventID] {
		existing := s.subscriptions[id]
		if existing.Active && existing.UserID == sub.UserID {
			return storage.ErrDuplicateSubscription
		}
	}

	stored := copySubscription(&sub)
	s.subscriptions[sub.ID] = &stored
	s.subsByEvent[sub.EventID] = append(s.subsByEvent[sub.EventID], sub.ID)
	return nil
}

func (s *Store) Subscription(_ context.Context, id uuid.UUID) (event.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subscriptions[id]
	if !exists {
		return event.Subscription{}, storage.ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

func (s *Store) ActiveSubscriptions(_ context.Context, eventID uuid.UUID) ([]event.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Subscription
	for _, id := range s.subsByEvent[eventID] {
		sub := s.subscriptions[id]
		if sub.Active {
			out = append(out, copySubscription(sub))
		}
	}
	return out, nil
}

func (s *Store) DeactivateSubscription(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[id]
	if !exists {
		return storage.ErrSubscriptionNotFound
	}
	if !sub.Active {
		return nil
	}

	now := time.Now()
	sub.Active = false
	sub.DeactivatedAt = &now
	return nil
}

func (s *Store) AddSelector(_ context.Context, sel event.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sel.SubscriptionID]; !exists {
		return storage.ErrSubscriptionNotFound
	}
	if err := sel.Validate(); err != nil {
		return err
	}

	for _, id := range s.selectorsBySub[sel.SubscriptionID] {
		existing := s.selectors[id]
		switch {
		case sel.ChannelID != nil && existing.ChannelID != nil && *existing.ChannelID == *sel.ChannelID:
			return storage.ErrDuplicateSelector
		case sel.ChannelID == nil && existing.ChannelID == nil && existing.Tag == sel.Tag:
			return storage.ErrDuplicateSelector
		}
	}

	stored := copySelector(&sel)
	s.selectors[sel.ID] = &stored
	s.selectorsBySub[sel.SubscriptionID] = append(s.selectorsBySub[sel.SubscriptionID], sel.ID)
	return nil
}

func (s *Store) RemoveSelector(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, exists := s.selectors[id]
	if !exists {
		return storage.ErrSelectorNotFound
	}

	s.selectorsBySub[sel.SubscriptionID] = slices.DeleteFunc(s.selectorsBySub[sel.SubscriptionID], func(sid uuid.UUID) bool {
		return sid == id
	})
	if len(s.selectorsBySub[sel.SubscriptionID]) == 0 {
		delete(s.selectorsBySub, sel.SubscriptionID)
	}
	delete(s.selectors, id)
	return nil
}

func (s *Store) SelectorsForSubscription(_ context.Context, subscriptionID uuid.UUID) ([]event.Selector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.selectorsBySub[subscriptionID]
	out := make([]event.Selector, 0, len(ids))
	for _, id := range ids {
		out = append(out, copySelector(s.selectors[id]))
	}
	return out, nil
}

func (s *Store) RecordAttempt(_ context.Context, a delivery.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[a.EventID] = append(s.attempts[a.EventID], copyAttempt(a))
	return nil
}

func (s *Store) AttemptsForEvent(_ context.Context, eventID uuid.UUID) ([]delivery.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.attempts[eventID]
	out := make([]delivery.Attempt, 0, len(stored))
	for _, a := range stored {
		out = append(out, copyAttempt(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func copyEvent(e *event.Event) event.Event {
	out := *e
	out.EndAt = cloneTime(e.EndAt)
	return out
}

func copyChannel(c *event.Channel) event.Channel {
	out := *c
	out.DeactivatedAt = cloneTime(c.DeactivatedAt)
	return out
}

func copySubscription(s *event.Subscription) event.Subscription {
	out := *s
	out.Offsets = slices.Clone(s.Offsets)
	out.DeactivatedAt = cloneTime(s.DeactivatedAt)
	return out
}

func copySelector(s *event.Selector) event.Selector {
	out := *s
	out.ChannelID = cloneUUID(s.ChannelID)
	return out
}

func copyAttempt(a delivery.Attempt) delivery.Attempt {
	a.ChannelID = cloneUUID(a.ChannelID)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := *t
	return &ts
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
