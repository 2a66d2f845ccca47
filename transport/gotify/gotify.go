// Package gotify pushes notifications to a Gotify server. The channel
// target is the full message endpoint including the application token, for
// example https://push.example.com/message?token=AbCdEf, so one user can
// fan out to applications on different servers.
package gotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/transport"
)

// Transport implements delivery.Transport for gotify channels.
type Transport struct {
	client *http.Client
}

var _ delivery.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{client: transport.NewHTTPClient(transport.DefaultTimeout)}
}

// NewWithClient creates a transport with a custom HTTP client, mainly for
// tests and instrumented setups.
func NewWithClient(client *http.Client) *Transport {
	if client == nil {
		return New()
	}
	return &Transport{client: client}
}

type pushRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (t *Transport) Send(ctx context.Context, ch event.Channel, msg delivery.Message) error {
	endpoint := ch.Target.Reveal()
	if err := transport.ValidateTargetURL(endpoint); err != nil {
		return err
	}

	payload, err := json.Marshal(pushRequest{Title: msg.Subject, Message: msg.Body})
	if err != nil {
		return fmt.Errorf("%w: encoding payload failed", delivery.ErrPermanent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building request failed", delivery.ErrPermanent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return transport.RequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	return transport.ResponseError(resp)
}
