package chathook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/transport/chathook"
)

func channel(target string) event.Channel {
	return event.Channel{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Kind:   event.ChannelWebhook,
		Target: event.Target(target),
		Active: true,
	}
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	msg := delivery.Message{
		EventID: uuid.New(),
		Kind:    delivery.KindEventCancelled,
		Subject: "Launch Party was cancelled",
		Body:    "Reason: venue flooded.",
	}

	t.Run("posts structured payload", func(t *testing.T) {
		t.Parallel()

		var got chathook.Payload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		tr := chathook.New(chathook.WithHTTPClient(srv.Client()))
		require.NoError(t, tr.Send(context.Background(), channel(srv.URL), msg))

		assert.Equal(t, msg.EventID.String(), got.EventID)
		assert.Equal(t, msg.Kind, got.Kind)
		assert.Equal(t, msg.Subject, got.Subject)
		assert.Equal(t, msg.Body, got.Body)
		assert.Contains(t, got.Text, msg.Subject)
		assert.Contains(t, got.Text, msg.Body)
		assert.WithinDuration(t, time.Now(), got.SentAt, time.Minute)
	})

	t.Run("signs when secret configured", func(t *testing.T) {
		t.Parallel()

		const secret = "hook-secret"

		var (
			gotBody    []byte
			gotHeaders chathook.SignatureHeaders
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			gotBody, err = io.ReadAll(r.Body)
			require.NoError(t, err)

			gotHeaders.Signature = r.Header.Get(chathook.HeaderSignature)
			gotHeaders.ID = r.Header.Get(chathook.HeaderID)
			ts, err := strconv.ParseInt(r.Header.Get(chathook.HeaderTimestamp), 10, 64)
			require.NoError(t, err)
			gotHeaders.Timestamp = ts

			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		tr := chathook.New(chathook.WithHTTPClient(srv.Client()), chathook.WithSigningSecret(secret))
		require.NoError(t, tr.Send(context.Background(), channel(srv.URL), msg))

		require.NotEmpty(t, gotHeaders.Signature)
		require.NotEmpty(t, gotHeaders.ID)
		assert.NoError(t, chathook.VerifySignature(secret, gotBody, gotHeaders, time.Minute))
	})

	t.Run("no signature without secret", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get(chathook.HeaderSignature))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		tr := chathook.New(chathook.WithHTTPClient(srv.Client()))
		require.NoError(t, tr.Send(context.Background(), channel(srv.URL), msg))
	})

	t.Run("gone endpoint is permanent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusGone)
		}))
		defer srv.Close()

		tr := chathook.New(chathook.WithHTTPClient(srv.Client()))
		err := tr.Send(context.Background(), channel(srv.URL), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrPermanent)
	})

	t.Run("server error is temporary", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		tr := chathook.New(chathook.WithHTTPClient(srv.Client()))
		err := tr.Send(context.Background(), channel(srv.URL), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, delivery.ErrTemporary)
	})
}

func TestSignPayload(t *testing.T) {
	t.Parallel()

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"event_id":"123"}`)
		headers, err := chathook.SignPayload("secret", payload)
		require.NoError(t, err)

		assert.NotEmpty(t, headers.Signature)
		assert.NotZero(t, headers.Timestamp)
		assert.NotEmpty(t, headers.ID)
		assert.Less(t, time.Since(time.Unix(headers.Timestamp, 0)), time.Second)
	})

	t.Run("empty secret", func(t *testing.T) {
		t.Parallel()

		_, err := chathook.SignPayload("", []byte("x"))
		assert.ErrorIs(t, err, chathook.ErrEmptySecret)
	})

	t.Run("empty payload", func(t *testing.T) {
		t.Parallel()

		_, err := chathook.SignPayload("secret", nil)
		assert.ErrorIs(t, err, chathook.ErrEmptyPayload)
	})
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	const secret = "verify-secret"
	payload := []byte(`{"test":"data"}`)

	valid, err := chathook.SignPayload(secret, payload)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, chathook.VerifySignature(secret, payload, valid, time.Hour))
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		err := chathook.VerifySignature("other-secret", payload, valid, time.Hour)
		assert.ErrorIs(t, err, chathook.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		err := chathook.VerifySignature(secret, []byte(`{"test":"tampered"}`), valid, time.Hour)
		assert.ErrorIs(t, err, chathook.ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		expired := valid
		expired.Timestamp = time.Now().Add(-2 * time.Hour).Unix()
		err := chathook.VerifySignature(secret, payload, expired, time.Hour)
		assert.ErrorIs(t, err, chathook.ErrInvalidSignature)
	})

	t.Run("far future timestamp", func(t *testing.T) {
		t.Parallel()

		future := valid
		future.Timestamp = time.Now().Add(2 * time.Hour).Unix()
		err := chathook.VerifySignature(secret, payload, future, time.Hour)
		assert.ErrorIs(t, err, chathook.ErrInvalidSignature)
	})

	t.Run("no replay window", func(t *testing.T) {
		t.Parallel()

		old := chathook.SignatureHeaders{
			Signature: valid.Signature,
			Timestamp: valid.Timestamp,
			ID:        valid.ID,
		}
		assert.NoError(t, chathook.VerifySignature(secret, payload, old, 0))
	})
}
