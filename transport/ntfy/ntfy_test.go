package ntfy_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/transport/ntfy"
)

func channel(target string) event.Channel {
	return event.Channel{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Kind:   event.ChannelNtfy,
		Target: event.Target(target),
		Active: true,
	}
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	msg := delivery.Message{
		EventID: uuid.New(),
		Kind:    delivery.KindReminder,
		Subject: "Launch Party starts in 1 hour",
		Body:    "Reminder: Launch Party starts soon.",
	}

	t.Run("publishes body with title header", func(t *testing.T) {
		t.Parallel()

		var (
			gotMethod string
			gotTitle  string
			gotBody   string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotTitle = r.Header.Get("Title")
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		tr := ntfy.NewWithClient(srv.Client())
		err := tr.Send(context.Background(), channel(srv.URL+"/event-updates"), msg)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, msg.Subject, gotTitle)
		assert.Equal(t, msg.Body, gotBody)
	})

	t.Run("server error is temporary", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		tr := ntfy.NewWithClient(srv.Client())
		err := tr.Send(context.Background(), channel(srv.URL+"/t"), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrTemporary)
	})

	t.Run("forbidden topic is permanent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer srv.Close()

		tr := ntfy.NewWithClient(srv.Client())
		err := tr.Send(context.Background(), channel(srv.URL+"/t"), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrPermanent)
	})

	t.Run("malformed target is permanent", func(t *testing.T) {
		t.Parallel()

		tr := ntfy.New()
		err := tr.Send(context.Background(), channel("not a topic url"), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrPermanent)
	})

	t.Run("unreachable server error carries no target", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		tr := ntfy.New()
		err := tr.Send(context.Background(), channel(srv.URL+"/private-topic"), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrTemporary)
		assert.NotContains(t, err.Error(), "private-topic")
	})
}
