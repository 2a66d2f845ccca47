// Package httpapi exposes the soonish service over HTTP. It wires a chi
// router over the Service facade, validates request bodies with
// go-playground/validator and renders a uniform JSON envelope
// ({"data": ...} or {"error": {code, message, details}}).
//
// Domain errors map onto statuses: missing resources are 404, uniqueness
// conflicts and operations on ended events are 409, invariant violations
// are 422. Anything unclassified is a 500 with a generic message; the
// underlying error is logged, never returned to the caller.
//
// Channel delivery targets are write-only at this boundary: they are
// accepted on registration and never serialized back in any response.
//
// Server wraps http.Server with signal-aware graceful shutdown so the
// binary's run group can treat it like any other worker.
package httpapi
