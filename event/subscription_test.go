package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pypeaday/soonish-sub002/event"
)

func TestSubscriptionReminderOffsets(t *testing.T) {
	t.Parallel()

	t.Run("falls back to defaults", func(t *testing.T) {
		t.Parallel()
		sub := event.Subscription{}
		assert.Equal(t, event.DefaultOffsets, sub.ReminderOffsets())
	})

	t.Run("keeps chosen offsets", func(t *testing.T) {
		t.Parallel()
		offsets := []time.Duration{30 * time.Minute}
		sub := event.Subscription{Offsets: offsets}
		assert.Equal(t, offsets, sub.ReminderOffsets())
	})
}

func TestSubscriptionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		offsets []time.Duration
		wantErr error
	}{
		{name: "no offsets"},
		{name: "positive offsets", offsets: []time.Duration{time.Hour, 10 * time.Minute}},
		{name: "zero offset", offsets: []time.Duration{0}, wantErr: event.ErrInvalidOffset},
		{name: "negative offset", offsets: []time.Duration{-time.Minute}, wantErr: event.ErrInvalidOffset},
		{name: "one bad among good", offsets: []time.Duration{time.Hour, -time.Second}, wantErr: event.ErrInvalidOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sub := event.Subscription{Offsets: tt.offsets}
			err := sub.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
