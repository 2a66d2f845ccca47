package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	soonish "github.com/pypeaday/soonish-sub002"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/storage"
)

// envelope is the uniform response shape. Exactly one of Data and Error is
// set.
type envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func (a *API) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func (a *API) writeErrorDetail(w http.ResponseWriter, status int, detail *errorDetail) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: detail})
}

// writeError renders a service error. Unclassified errors are logged with
// their cause and reach the caller as an anonymous 500.
func (a *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		a.log.ErrorContext(ctx, "request failed", logger.Error(err))
		a.writeErrorDetail(w, status, &errorDetail{Code: code, Message: "internal server error"})
		return
	}
	a.writeErrorDetail(w, status, &errorDetail{Code: code, Message: err.Error()})
}

func (a *API) writeBadRequest(w http.ResponseWriter, message string) {
	a.writeErrorDetail(w, http.StatusBadRequest, &errorDetail{Code: "bad_request", Message: message})
}

// writeValidation renders field-level validation failures keyed by the
// request's json field names.
func (a *API) writeValidation(w http.ResponseWriter, errs validator.ValidationErrors) {
	details := make(map[string][]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = append(details[fe.Field()], fieldMessage(fe))
	}
	a.writeErrorDetail(w, http.StatusUnprocessableEntity, &errorDetail{
		Code:    "validation_error",
		Message: "request validation failed",
		Details: details,
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	default:
		return "is invalid"
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrEventNotFound),
		errors.Is(err, storage.ErrChannelNotFound),
		errors.Is(err, storage.ErrSubscriptionNotFound),
		errors.Is(err, storage.ErrSelectorNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, soonish.ErrEventEnded):
		return http.StatusConflict, "event_ended"

	case errors.Is(err, storage.ErrEventExists),
		errors.Is(err, storage.ErrDuplicateChannel),
		errors.Is(err, storage.ErrDuplicateSubscription),
		errors.Is(err, storage.ErrDuplicateSelector):
		return http.StatusConflict, "conflict"

	case errors.Is(err, event.ErrTitleRequired),
		errors.Is(err, event.ErrStartRequired),
		errors.Is(err, event.ErrEndBeforeStart),
		errors.Is(err, event.ErrUnknownChannelKind),
		errors.Is(err, event.ErrEmptyTarget),
		errors.Is(err, event.ErrInvalidOffset),
		errors.Is(err, event.ErrEmptySelector),
		errors.Is(err, event.ErrAmbiguousSelector),
		errors.Is(err, soonish.ErrNoteIncomplete):
		return http.StatusUnprocessableEntity, "validation_error"
	}
	return http.StatusInternalServerError, "internal_error"
}
