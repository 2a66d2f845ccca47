package event_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pypeaday/soonish-sub002/event"
)

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase unchanged", "phone", "phone"},
		{"uppercase folded", "PHONE", "phone"},
		{"mixed case folded", "Phone", "phone"},
		{"whitespace trimmed", "  phone ", "phone"},
		{"non-ascii folded", "BÜRO", "büro"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, event.NormalizeTag(tt.in))
		})
	}
}

func TestTargetRedaction(t *testing.T) {
	t.Parallel()

	target := event.Target("alice@example.com")

	assert.Equal(t, "[redacted]", target.String())
	assert.Equal(t, "[redacted]", fmt.Sprintf("%v", target))
	assert.Equal(t, "[redacted]", target.LogValue().String())
	assert.Equal(t, "alice@example.com", target.Reveal())
}

func TestChannelValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ch      event.Channel
		wantErr error
	}{
		{
			name: "valid email channel",
			ch:   event.Channel{Kind: event.ChannelEmail, Target: "alice@example.com"},
		},
		{
			name:    "unknown kind",
			ch:      event.Channel{Kind: "pigeon", Target: "rooftop"},
			wantErr: event.ErrUnknownChannelKind,
		},
		{
			name:    "empty target",
			ch:      event.Channel{Kind: event.ChannelNtfy},
			wantErr: event.ErrEmptyTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ch.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSelectorValidate(t *testing.T) {
	t.Parallel()

	subID := uuid.New()
	chID := uuid.New()

	t.Run("channel selector", func(t *testing.T) {
		t.Parallel()
		sel := event.ChannelSelector(subID, chID)
		assert.NoError(t, sel.Validate())
		assert.False(t, sel.ByTag())
	})

	t.Run("tag selector folds tag", func(t *testing.T) {
		t.Parallel()
		sel := event.TagSelector(subID, "  Phone ")
		assert.NoError(t, sel.Validate())
		assert.True(t, sel.ByTag())
		assert.Equal(t, "phone", sel.Tag)
	})

	t.Run("empty selector rejected", func(t *testing.T) {
		t.Parallel()
		sel := event.Selector{ID: uuid.New(), SubscriptionID: subID}
		assert.ErrorIs(t, sel.Validate(), event.ErrEmptySelector)
	})

	t.Run("ambiguous selector rejected", func(t *testing.T) {
		t.Parallel()
		sel := event.Selector{ID: uuid.New(), SubscriptionID: subID, ChannelID: &chID, Tag: "phone"}
		assert.ErrorIs(t, sel.Validate(), event.ErrAmbiguousSelector)
	})
}
