// Package event defines the domain model shared by every component of the
// service: events with a scheduled window, delivery channels owned by users,
// subscriptions tying users to events, and selectors that route a
// subscription's notifications to specific channels.
//
// The types here are plain data with validation; behavior lives in the
// delivery, reminder and lifecycle packages.
package event
