// Package postmarkmail delivers email channels through the Postmark
// transactional API.
package postmarkmail

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/mrz1836/postmark"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
)

// Config holds Postmark transport configuration. All values are required:
// a half-configured mailer should fail at startup, not park signals later.
type Config struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"POSTMARK_SENDER_EMAIL"`
}

// ErrInvalidConfig is returned by New for missing or malformed settings.
var ErrInvalidConfig = errors.New("postmark transport config is invalid")

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// maintenanceErrorCode is the one Postmark API error that clears on its own.
// Every other code means the request or the account is wrong.
const maintenanceErrorCode = 100

// Transport implements delivery.Transport for email channels.
type Transport struct {
	client *postmark.Client
	from   string
}

var _ delivery.Transport = (*Transport)(nil)

func New(cfg Config) (*Transport, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: AccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}

	return &Transport{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:   cfg.SenderEmail,
	}, nil
}

// Send submits one plain-text email. The message kind travels as the
// Postmark tag so provider-side analytics line up with attempt records.
// API errors are reported by code only: Postmark messages echo the
// recipient address.
func (t *Transport) Send(ctx context.Context, ch event.Channel, msg delivery.Message) error {
	to := ch.Target.Reveal()
	if !emailRegex.MatchString(to) {
		return fmt.Errorf("%w: recipient is not a valid email address", delivery.ErrPermanent)
	}

	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:     t.from,
		To:       to,
		Subject:  msg.Subject,
		TextBody: msg.Body,
		Tag:      msg.Kind,
	})
	if err != nil {
		return fmt.Errorf("%w: postmark request failed", delivery.ErrTemporary)
	}

	switch resp.ErrorCode {
	case 0:
		return nil
	case maintenanceErrorCode:
		return fmt.Errorf("%w: postmark error code %d", delivery.ErrTemporary, resp.ErrorCode)
	default:
		return fmt.Errorf("%w: postmark error code %d", delivery.ErrPermanent, resp.ErrorCode)
	}
}
