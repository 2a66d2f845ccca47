// Package ntfy publishes notifications to ntfy topics. The channel target
// is the full topic URL, which keeps the choice of server with the user and
// works against self-hosted instances without extra configuration.
package ntfy

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/transport"
)

// Transport implements delivery.Transport for ntfy channels.
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

// Send publishes the message body to the topic URL with the subject as the
// ntfy title header.
func (t *Transport) Send(ctx context.Context, ch event.Channel, msg delivery.Message) error {
	topicURL := ch.Target.Reveal()
	if err := transport.ValidateTargetURL(topicURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, topicURL, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("%w: building request failed", delivery.ErrPermanent)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.Subject)

	resp, err := t.client.Do(req)
	if err != nil {
		return transport.RequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	return transport.ResponseError(resp)
}
