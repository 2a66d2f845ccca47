// Package soonish coordinates time-bound events and delivers notifications
// about them to subscribers over their own channels: email addresses, ntfy
// topics, gotify servers, chat webhooks and telegram chats.
//
// The Service facade is the single entry point. It persists domain state
// through a storage.Store, drives one durable orchestration instance per
// event through the runtime, and turns lifecycle moments into notifications
// through the delivery fan-out engine:
//
//	store := memory.New()
//	rt, _ := runtime.New(runtime.NewMemoryStore())
//
//	transports := delivery.NewRegistry()
//	transports.Register(event.ChannelNtfy, ntfy.New())
//
//	svc, _ := soonish.New(store, rt, transports)
//
//	evt, _ := svc.CreateEvent(ctx, event.Event{
//		OrganizerID: organizer,
//		Title:       "Launch party",
//		StartAt:     time.Now().Add(48 * time.Hour),
//	})
//	sub, _ := svc.Subscribe(ctx, evt.ID, attendee)
//
// Creating an event starts its orchestration; subscribing, updating,
// cancelling and manual notes append signals to it. Signals of one event are
// processed strictly in order by runtime workers, so the orchestrator never
// sees a welcome after a cancellation. Reminders are durable timers armed
// relative to the event's start; they survive process restarts and re-check
// fresh state when they fire.
//
// New registers the lifecycle and reminder handlers on the runtime. The
// process must also run a runtime.Worker (and usually a runtime.Janitor)
// over the same runtime for signals and timers to actually execute:
//
//	worker, _ := runtime.NewWorker(rt)
//	worker.Start(ctx)
//	defer worker.Stop()
//
// Delivery outcomes land in an append-only attempt log queried through
// DeliveryReport and Attempts; nothing about a failed channel blocks the
// rest of the audience.
package soonish
