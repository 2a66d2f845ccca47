// Package telegram delivers notifications through the Telegram Bot API.
// The channel target is the chat id; the bot token is service configuration
// shared by all telegram channels.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/transport"
)

const defaultBaseURL = "https://api.telegram.org"

// ErrEmptyToken is returned by New when the bot token is missing.
var ErrEmptyToken = errors.New("telegram bot token is required")

// Transport implements delivery.Transport for telegram channels.
type Transport struct {
	client  *http.Client
	baseURL string
	token   string
}

var _ delivery.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the default pooled client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithBaseURL points the transport at a different API host, for tests and
// for bot API proxies.
func WithBaseURL(baseURL string) Option {
	return func(t *Transport) {
		if baseURL != "" {
			t.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

func New(token string, opts ...Option) (*Transport, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	t := &Transport{
		client:  transport.NewHTTPClient(transport.DefaultTimeout),
		baseURL: defaultBaseURL,
		token:   token,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts subject and body as one message to the chat. Request errors
// pass through transport.RequestError since the API URL embeds the bot
// token.
func (t *Transport) Send(ctx context.Context, ch event.Channel, msg delivery.Message) error {
	chatID := strings.TrimSpace(ch.Target.Reveal())
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", delivery.ErrPermanent)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID: chatID,
		Text:   msg.Subject + "\n\n" + msg.Body,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding payload failed", delivery.ErrPermanent)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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
