package storage

import "errors"

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSelectorNotFound     = errors.New("selector not found")

	ErrEventExists           = errors.New("event already exists")
	ErrDuplicateChannel      = errors.New("an active channel with this target and tag already exists")
	ErrDuplicateSubscription = errors.New("user already has an active subscription to this event")
	ErrDuplicateSelector     = errors.New("subscription already has this selector")
)
