// Package smtpmail delivers email channels through a plain SMTP relay.
// It covers development and self-hosted deployments; production setups
// normally register postmarkmail instead.
package smtpmail

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/mail.v2"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
)

// Config holds SMTP relay settings.
type Config struct {
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT" envDefault:"587"`
	Username string        `env:"SMTP_USERNAME"`
	Password string        `env:"SMTP_PASSWORD"`
	Sender   string        `env:"SMTP_SENDER_EMAIL"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`
}

// ErrInvalidConfig is returned by New for missing or malformed settings.
var ErrInvalidConfig = errors.New("smtp transport config is invalid")

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Transport implements delivery.Transport for email channels over SMTP.
type Transport struct {
	dialer *mail.Dialer
	from   string
}

var _ delivery.Transport = (*Transport)(nil)

func New(cfg Config) (*Transport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: Host is required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("%w: Port must be positive", ErrInvalidConfig)
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("%w: Sender is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.Sender) {
		return nil, fmt.Errorf("%w: Sender must be a valid email address", ErrInvalidConfig)
	}

	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		dialer.Timeout = cfg.Timeout
	}

	return &Transport{dialer: dialer, from: cfg.Sender}, nil
}

// Send dials the relay per message. mail.v2 carries no context support, so
// cancellation is honored before dialing and the dialer timeout bounds the
// rest. SMTP replies echo the recipient address, so dial and send failures
// are reported without the server's words.
func (t *Transport) Send(ctx context.Context, ch event.Channel, msg delivery.Message) error {
	to := ch.Target.Reveal()
	if !emailRegex.MatchString(to) {
		return fmt.Errorf("%w: recipient is not a valid email address", delivery.ErrPermanent)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: request canceled", delivery.ErrTemporary)
	}

	m := mail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := t.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("%w: smtp delivery failed", delivery.ErrTemporary)
	}
	return nil
}
