// Package transport hosts the channel transports and the HTTP glue they
// share. Each subpackage implements delivery.Transport for one channel kind
// and classifies failures by wrapping delivery.ErrTemporary or
// delivery.ErrPermanent, which the fan-out engine reads to decide between
// retrying and recording a permanent failure.
//
// Transport errors end up in stored attempt records, and channel targets are
// secrets. Request URLs, provider messages and SMTP replies all echo the
// destination, so the helpers here keep error strings to status codes and
// failure classes instead of quoting what the wire said.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pypeaday/soonish-sub002/delivery"
)

// DefaultTimeout bounds a single delivery request. Retries are the engine's
// job, so a transport call should give up well before the engine does.
const DefaultTimeout = 30 * time.Second

// drainLimit caps how much of a response body is read before closing.
const drainLimit = 64 * 1024

// NewHTTPClient returns a pooled client for the HTTP transports. Connection
// limits keep a busy fan-out from exhausting sockets against one endpoint.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ResponseError converts an HTTP response into a classified delivery error,
// or nil for 2xx. The body is drained for connection reuse but never quoted:
// servers echo request URLs, and for these transports the URL is the target.
func ResponseError(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if PermanentStatus(resp.StatusCode) {
		return fmt.Errorf("%w: status %d", delivery.ErrPermanent, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d", delivery.ErrTemporary, resp.StatusCode)
}

// RequestError classifies a failure to execute an HTTP request. url.Error
// and net errors echo the request URL and host, so only the failure class
// survives.
func RequestError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: request timed out", delivery.ErrTemporary)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: request canceled", delivery.ErrTemporary)
	default:
		return fmt.Errorf("%w: request failed", delivery.ErrTemporary)
	}
}

// PermanentStatus reports whether the status code will not change on retry.
// Most 4xx codes mean the request itself is wrong; 408, 425 and 429 are
// server-side timing conditions that may clear.
func PermanentStatus(statusCode int) bool {
	if statusCode < 400 || statusCode >= 500 {
		return false
	}
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

// ValidateTargetURL checks that a target parses as an absolute http(s) URL.
// A malformed target never becomes deliverable, so failures are permanent.
// Parse errors echo the raw value and are not wrapped.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: target is not a valid url", delivery.ErrPermanent)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: target url must be http or https", delivery.ErrPermanent)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: target url host is required", delivery.ErrPermanent)
	}
	return nil
}
