package notice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/notice"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	kinds := []string{
		delivery.KindEventCreated,
		delivery.KindWelcome,
		delivery.KindEventUpdated,
		delivery.KindOrganizerNote,
		delivery.KindEventCancelled,
		delivery.KindReminder,
	}

	c := notice.Default()
	for _, kind := range kinds {
		tmpl, ok := c.Template(kind)
		require.True(t, ok, "missing template for %s", kind)
		assert.NotEmpty(t, tmpl.Subject)
		assert.NotEmpty(t, tmpl.Body)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("override replaces one template and keeps the rest", func(t *testing.T) {
		t.Parallel()

		c, err := notice.Parse([]byte(`
event_cancelled:
  subject: "[cancelled] %{title}"
  body: "%{title} is off. Reason: %{reason}."
`))
		require.NoError(t, err)

		tmpl, ok := c.Template(delivery.KindEventCancelled)
		require.True(t, ok)
		assert.Equal(t, "[cancelled] %{title}", tmpl.Subject)

		def, _ := notice.Default().Template(delivery.KindWelcome)
		got, ok := c.Template(delivery.KindWelcome)
		require.True(t, ok)
		assert.Equal(t, def, got)
	})

	t.Run("empty content keeps defaults", func(t *testing.T) {
		t.Parallel()

		c, err := notice.Parse(nil)
		require.NoError(t, err)

		def, _ := notice.Default().Template(delivery.KindReminder)
		got, ok := c.Template(delivery.KindReminder)
		require.True(t, ok)
		assert.Equal(t, def, got)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		t.Parallel()

		_, err := notice.Parse([]byte(`
event_canceled:
  subject: "typo"
  body: "typo"
`))
		require.ErrorIs(t, err, notice.ErrUnknownKind)
	})

	t.Run("incomplete template rejected", func(t *testing.T) {
		t.Parallel()

		_, err := notice.Parse([]byte(`
reminder:
  subject: "%{title} soon"
`))
		require.ErrorIs(t, err, notice.ErrEmptyTemplate)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		t.Parallel()

		_, err := notice.Parse([]byte("reminder: [not a template"))
		require.ErrorIs(t, err, notice.ErrFailedToParseYAML)
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("reads overrides from file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "notices.yaml")
		content := []byte(`
organizer_note:
  subject: "%{subject}"
  body: "%{body}"
`)
		require.NoError(t, os.WriteFile(path, content, 0o600))

		c, err := notice.Load(path)
		require.NoError(t, err)

		tmpl, ok := c.Template(delivery.KindOrganizerNote)
		require.True(t, ok)
		assert.Equal(t, "%{subject}", tmpl.Subject)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := notice.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, notice.ErrFailedToReadFile)
	})
}
