package httpapi

import "errors"

var (
	// ErrServiceNil is returned by New when no service is supplied.
	ErrServiceNil = errors.New("service cannot be nil")

	// ErrStart indicates that the server failed to start.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown indicates that graceful shutdown failed.
	ErrShutdown = errors.New("failed to shutdown HTTP server gracefully")
)
