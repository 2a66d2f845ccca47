package notice

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pypeaday/soonish-sub002/delivery"
)

// Template is a subject/body pair with named "%{key}" placeholders.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Catalog holds one template per message kind. It is immutable after
// construction, so a single catalog is safe to share across goroutines.
type Catalog struct {
	templates map[string]Template
}

// Default returns the built-in catalog covering every message kind.
func Default() *Catalog {
	return &Catalog{templates: map[string]Template{
		delivery.KindEventCreated: {
			Subject: "Your event %{title} is live",
			Body:    "You organize %{title}. It starts on %{start_at}. Subscribers receive updates and their reminders automatically from here on.",
		},
		delivery.KindWelcome: {
			Subject: "You are subscribed to %{title}",
			Body:    "Your subscription to %{title} is active. The event starts on %{start_at}. Updates and your reminders will arrive on the channels you selected.",
		},
		delivery.KindEventUpdated: {
			Subject: "%{title} was updated",
			Body:    "The event %{title} changed: %{changed}. It now starts on %{start_at}.",
		},
		delivery.KindOrganizerNote: {
			Subject: "%{title}: %{subject}",
			Body:    "%{body}",
		},
		delivery.KindEventCancelled: {
			Subject: "%{title} was cancelled",
			Body:    "The event %{title} will not take place. Reason: %{reason}. No further notifications will be sent for it.",
		},
		delivery.KindReminder: {
			Subject: "%{title} starts in %{lead}",
			Body:    "Reminder: %{title} starts on %{start_at}, %{lead} from now.",
		},
	}}
}

// Parse merges YAML template overrides over the built-in catalog. The
// content maps message kinds to subject/body pairs; kinds absent from the
// content keep their defaults. Unknown kinds and incomplete templates are
// rejected so typos in override files surface at startup.
func Parse(content []byte) (*Catalog, error) {
	var overrides map[string]Template
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return nil, errors.Join(ErrFailedToParseYAML, err)
	}

	c := Default()
	for kind, tmpl := range overrides {
		if _, ok := c.templates[kind]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
		if tmpl.Subject == "" || tmpl.Body == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyTemplate, kind)
		}
		c.templates[kind] = tmpl
	}
	return c, nil
}

// Load reads a YAML override file and merges it over the built-in catalog.
func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadFile, err)
	}
	return Parse(content)
}

// Template returns the template registered for a message kind.
func (c *Catalog) Template(kind string) (Template, bool) {
	tmpl, ok := c.templates[kind]
	return tmpl, ok
}
