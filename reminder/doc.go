// Package reminder schedules and fires offset-based reminders through
// durable timers.
//
// Every reminder registration is addressed by a deterministic id derived
// from the event, the subscription and the offset, so scheduling is
// idempotent: replays and signal redeliveries land on the existing timer
// instead of arming a duplicate. When an event's start time moves, the
// scheduler walks the registrations that actually exist and recomputes
// their fire times; registrations whose new fire time already passed are
// cancelled, never fired late.
//
// Firing re-reads fresh state. A reminder that outlived its event records a
// skipped attempt instead of delivering, and a reminder whose subscription
// was deactivated is dropped silently.
package reminder
