// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// New builds a *slog.Logger from a set of Option functions: pick an output
// format (text or json), a minimum level, static attributes applied to every
// record, and ContextExtractor callbacks that pull request-scoped values (a
// request id, the environment) out of the context on every Handle call.
//
// The helper constructors in attr.go keep attribute naming consistent across
// the codebase: every log line that mentions an event uses "event_id", every
// delivery attempt uses "outcome", and so on. Helpers that accept a value
// return an empty Attr when the value is nil, so call sites never need a nil
// check:
//
//	log.InfoContext(ctx, "signal processed",
//	    logger.InstanceID(inst.ID),
//	    logger.Signal(sig.Name),
//	    logger.Error(err),
//	)
package logger
