package notice

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
)

// timeLayout is how event times appear in rendered notices. Times are
// normalized to UTC so the same event renders identically everywhere.
const timeLayout = "Mon, 2 Jan 2006 15:04 UTC"

// EventCreated renders the organizer's creation confirmation.
func (c *Catalog) EventCreated(evt event.Event) delivery.Message {
	return c.message(evt, delivery.KindEventCreated, eventParams(evt))
}

// Welcome renders the personal confirmation for a new subscription.
func (c *Catalog) Welcome(evt event.Event) delivery.Message {
	return c.message(evt, delivery.KindWelcome, eventParams(evt))
}

// EventUpdated renders the change broadcast. The changed field names are
// joined into the %{changed} placeholder.
func (c *Catalog) EventUpdated(evt event.Event, changed []string) delivery.Message {
	params := eventParams(evt)
	params["changed"] = "details"
	if len(changed) > 0 {
		params["changed"] = strings.Join(changed, ", ")
	}
	return c.message(evt, delivery.KindEventUpdated, params)
}

// OrganizerNote renders a manual notification with the organizer's own
// subject and body.
func (c *Catalog) OrganizerNote(evt event.Event, subject, body string) delivery.Message {
	params := eventParams(evt)
	params["subject"] = subject
	params["body"] = body
	return c.message(evt, delivery.KindOrganizerNote, params)
}

// EventCancelled renders the cancellation broadcast.
func (c *Catalog) EventCancelled(evt event.Event, reason string) delivery.Message {
	params := eventParams(evt)
	params["reason"] = "not given"
	if reason != "" {
		params["reason"] = reason
	}
	return c.message(evt, delivery.KindEventCancelled, params)
}

// Reminder renders the reminder fired lead before the event start.
func (c *Catalog) Reminder(evt event.Event, lead time.Duration) delivery.Message {
	params := eventParams(evt)
	params["lead"] = formatLead(lead)
	return c.message(evt, delivery.KindReminder, params)
}

func (c *Catalog) message(evt event.Event, kind string, params map[string]string) delivery.Message {
	tmpl := c.templates[kind]
	return delivery.Message{
		EventID: evt.ID,
		Kind:    kind,
		Subject: substitute(tmpl.Subject, params),
		Body:    substitute(tmpl.Body, params),
	}
}

func eventParams(evt event.Event) map[string]string {
	return map[string]string{
		"title":       evt.Title,
		"description": evt.Description,
		"start_at":    evt.StartAt.UTC().Format(timeLayout),
		"end_at":      evt.End().UTC().Format(timeLayout),
	}
}

// Placeholders take the form %{name}.
var paramRegex = regexp.MustCompile(`%\{([^}]+)\}`)

// substitute replaces named placeholders with values from params. Names
// without a value keep their placeholder text.
func substitute(tmpl string, params map[string]string) string {
	return paramRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := params[name]; ok {
			return val
		}
		return match
	})
}

// formatLead renders a reminder offset the way people say it: whole days,
// then whole hours, then whole minutes. Offsets that do not divide evenly
// fall back to Duration.String().
func formatLead(d time.Duration) string {
	if d <= 0 {
		return "moments"
	}
	switch {
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
