package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	soonish "github.com/pypeaday/soonish-sub002"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/pkg/requestid"
)

// API is the HTTP surface over the soonish service.
type API struct {
	svc      *soonish.Service
	log      *slog.Logger
	validate *validator.Validate
	checks   []func(context.Context) error
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger used for request failures and readiness
// checks.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithReadyChecks registers dependency probes for the readiness endpoint.
func WithReadyChecks(checks ...func(context.Context) error) Option {
	return func(a *API) {
		a.checks = append(a.checks, checks...)
	}
}

// New builds the API over the service facade.
func New(svc *soonish.Service, opts ...Option) (*API, error) {
	if svc == nil {
		return nil, ErrServiceNil
	}

	a := &API{
		svc:      svc,
		log:      slog.Default(),
		validate: validator.New(),
	}
	// Validation failures report the field as the caller sent it.
	a.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler returns the routed http.Handler. Every request is tagged with a
// correlation id so handler log lines can be tied back to one call.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	r.Get("/health", a.liveness)
	r.Get("/ready", a.readiness)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", a.createEvent)
		r.Get("/", a.listEvents)
		r.Route("/{eventID}", func(r chi.Router) {
			r.Get("/", a.getEvent)
			r.Patch("/", a.updateEvent)
			r.Delete("/", a.cancelEvent)
			r.Get("/status", a.eventStatus)
			r.Get("/report", a.deliveryReport)
			r.Get("/attempts", a.listAttempts)
			r.Get("/reminders", a.listReminders)
			r.Post("/notes", a.postNote)
			r.Post("/subscriptions", a.subscribe)
		})
	})

	r.Route("/subscriptions/{subscriptionID}", func(r chi.Router) {
		r.Get("/", a.getSubscription)
		r.Delete("/", a.unsubscribe)
		r.Get("/selectors", a.listSelectors)
		r.Post("/selectors", a.addSelector)
	})
	r.Delete("/selectors/{selectorID}", a.removeSelector)

	r.Post("/channels", a.addChannel)
	r.Delete("/channels/{channelID}", a.deactivateChannel)
	r.Get("/users/{userID}/channels", a.listChannels)

	return r
}

func (a *API) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ALIVE"))
}

func (a *API) readiness(w http.ResponseWriter, r *http.Request) {
	for _, check := range a.checks {
		if err := check(r.Context()); err != nil {
			a.log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// decode reads the JSON body into v. It writes the 400 itself so handlers
// can bail with a bare return.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeBadRequest(w, "malformed request body")
		return false
	}
	return true
}

// check runs struct validation and writes the 422 on failure.
func (a *API) check(w http.ResponseWriter, req any) bool {
	err := a.validate.Struct(req)
	if err == nil {
		return true
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		a.writeValidation(w, errs)
	} else {
		a.writeBadRequest(w, "invalid request")
	}
	return false
}

// pathID parses a uuid URL parameter and writes the 400 on failure.
func (a *API) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil || id == uuid.Nil {
		a.writeBadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
