// Package chathook posts notifications to user-supplied webhook endpoints:
// chat service incoming hooks, automation servers, anything that accepts a
// JSON POST. The payload carries structured fields plus a plain "text"
// rendering so chat services display something sensible without mapping.
// When a signing secret is configured every post carries HMAC-SHA256
// signature headers the receiver can verify.
package chathook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/transport"
)

// Transport implements delivery.Transport for webhook channels.
type Transport struct {
	client *http.Client
	secret string
}

var _ delivery.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithSigningSecret enables signature headers on every post.
func WithSigningSecret(secret string) Option {
	return func(t *Transport) { t.secret = secret }
}

// WithHTTPClient replaces the default pooled client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		if client != nil {
			t.client = client
		}
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{client: transport.NewHTTPClient(transport.DefaultTimeout)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Payload is the JSON document posted to the hook endpoint.
type Payload struct {
	EventID string    `json:"event_id"`
	Kind    string    `json:"kind"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

func (t *Transport) Send(ctx context.Context, ch event.Channel, msg delivery.Message) error {
	hookURL := ch.Target.Reveal()
	if err := transport.ValidateTargetURL(hookURL); err != nil {
		return err
	}

	body, err := json.Marshal(Payload{
		EventID: msg.EventID.String(),
		Kind:    msg.Kind,
		Subject: msg.Subject,
		Body:    msg.Body,
		Text:    msg.Subject + "\n\n" + msg.Body,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding payload failed", delivery.ErrPermanent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request failed", delivery.ErrPermanent)
	}
	req.Header.Set("Content-Type", "application/json")

	if t.secret != "" {
		headers, err := SignPayload(t.secret, body)
		if err != nil {
			return fmt.Errorf("%w: signing payload failed", delivery.ErrPermanent)
		}
		for k, v := range headers.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return transport.RequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	return transport.ResponseError(resp)
}
