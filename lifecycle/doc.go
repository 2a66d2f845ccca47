// Package lifecycle orchestrates the life of one event from creation to
// its absorbing end state.
//
// Each event gets exactly one orchestration instance, addressed by a
// deterministic id, and every change to the event reaches the orchestrator
// as an ordered signal: subscriptions come and go, the event is updated or
// cancelled, an organizer note is broadcast, or the internal watch timer
// reports that the event's time window elapsed. Because signals are
// processed strictly in order, a cancellation and an update can never
// interleave, and nothing observes the event half-transitioned.
//
// The ended state is absorbing. Signals that arrive afterwards are
// processed as logged no-ops until the instance is retired.
package lifecycle
