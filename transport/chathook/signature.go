package chathook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Signature header names attached to signed hook posts.
const (
	HeaderSignature = "X-Soonish-Signature"
	HeaderTimestamp = "X-Soonish-Timestamp"
	HeaderID        = "X-Soonish-ID"
)

var (
	// ErrInvalidSignature covers missing, malformed and mismatching
	// signature data during verification.
	ErrInvalidSignature = errors.New("invalid hook signature")

	// ErrEmptyPayload is returned when signing or verifying a zero-length
	// payload.
	ErrEmptyPayload = errors.New("payload cannot be empty")

	// ErrEmptySecret is returned when the signing secret is missing.
	ErrEmptySecret = errors.New("secret is required")
)

// SignatureHeaders carries the authentication data of one signed post. The
// timestamp binds the signature to its sending time, the id is unique per
// post so receivers can deduplicate redeliveries.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

// Headers returns the signature data keyed by HTTP header name.
func (s SignatureHeaders) Headers() map[string]string {
	return map[string]string{
		HeaderSignature: s.Signature,
		HeaderTimestamp: strconv.FormatInt(s.Timestamp, 10),
		HeaderID:        s.ID,
	}
}

// SignPayload creates signature headers for a hook payload.
// Signature format: HMAC-SHA256(secret, timestamp + "." + payload).
func SignPayload(secret string, payload []byte) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, ErrEmptySecret
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, ErrEmptyPayload
	}

	timestamp := time.Now().Unix()
	return SignatureHeaders{
		Signature: computeSignature(secret, payload, timestamp),
		Timestamp: timestamp,
		ID:        uuid.New().String(),
	}, nil
}

// VerifySignature authenticates a received hook post. A positive maxAge
// also enforces a replay window; moderate clock skew into the future is
// tolerated.
func VerifySignature(secret string, payload []byte, headers SignatureHeaders, maxAge time.Duration) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if headers.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidSignature)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(headers.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: timestamp too old: %v", ErrInvalidSignature, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp is in the future", ErrInvalidSignature)
		}
	}

	expected := computeSignature(secret, payload, headers.Timestamp)
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

func computeSignature(secret string, payload []byte, timestamp int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", timestamp, payload)
	return hex.EncodeToString(h.Sum(nil))
}
