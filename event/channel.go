package event

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// ChannelKind identifies the transport a channel delivers through.
type ChannelKind string

const (
	ChannelEmail    ChannelKind = "email"
	ChannelNtfy     ChannelKind = "ntfy"
	ChannelGotify   ChannelKind = "gotify"
	ChannelWebhook  ChannelKind = "webhook"
	ChannelTelegram ChannelKind = "telegram"
)

// KnownKind reports whether kind is one of the supported channel kinds.
func KnownKind(kind ChannelKind) bool {
	switch kind {
	case ChannelEmail, ChannelNtfy, ChannelGotify, ChannelWebhook, ChannelTelegram:
		return true
	}
	return false
}

// Target is an opaque delivery destination: an email address, an ntfy topic
// URL, a gotify endpoint, a webhook URL or a telegram chat id. It renders
// redacted through fmt and slog; transports call Reveal for the raw value.
type Target string

func (t Target) String() string { return "[redacted]" }

func (t Target) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Reveal returns the raw destination value.
func (t Target) Reveal() string { return string(t) }

func (t Target) IsZero() bool { return t == "" }

// Channel is a user-owned delivery destination. A channel may carry a tag so
// subscriptions can address groups of channels ("phone", "work") instead of
// individual ids.
type Channel struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Kind          ChannelKind
	Target        Target
	Label         string
	Tag           string // stored folded, see NormalizeTag
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeactivatedAt *time.Time
}

// Validate checks structural invariants before persistence.
func (c Channel) Validate() error {
	if !KnownKind(c.Kind) {
		return ErrUnknownChannelKind
	}
	if c.Target.IsZero() {
		return ErrEmptyTarget
	}
	return nil
}

var tagFolder = cases.Fold()

// NormalizeTag trims and case-folds a channel tag so that "Phone", "phone"
// and "PHONE" address the same group. Folding handles non-ASCII tags
// correctly where strings.ToLower would not.
func NormalizeTag(tag string) string {
	return tagFolder.String(strings.TrimSpace(tag))
}
