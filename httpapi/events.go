package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	soonish "github.com/pypeaday/soonish-sub002"
	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
)

type createEventRequest struct {
	ID          *uuid.UUID `json:"id"`
	OrganizerID uuid.UUID  `json:"organizer_id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	StartAt     time.Time  `json:"start_at" validate:"required"`
	EndAt       *time.Time `json:"end_at"`
	Public      bool       `json:"public"`
}

type updateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	ClearEnd    bool       `json:"clear_end"`
	Public      *bool      `json:"public"`
}

type cancelEventRequest struct {
	Reason string `json:"reason"`
}

type noteRequest struct {
	Subject         string      `json:"subject" validate:"required"`
	Body            string      `json:"body" validate:"required"`
	SubscriptionIDs []uuid.UUID `json:"subscription_ids"`
}

type subscribeRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	// Offsets are reminder lead times as Go duration strings ("24h", "90m").
	Offsets []string `json:"offsets"`
}

type eventResponse struct {
	ID          uuid.UUID  `json:"id"`
	OrganizerID uuid.UUID  `json:"organizer_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       *time.Time `json:"end_at,omitempty"`
	Public      bool       `json:"public"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toEventResponse(evt event.Event) eventResponse {
	return eventResponse{
		ID:          evt.ID,
		OrganizerID: evt.OrganizerID,
		Title:       evt.Title,
		Description: evt.Description,
		StartAt:     evt.StartAt,
		EndAt:       evt.EndAt,
		Public:      evt.Public,
		CreatedAt:   evt.CreatedAt,
		UpdatedAt:   evt.UpdatedAt,
	}
}

type statusResponse struct {
	EventID uuid.UUID `json:"event_id"`
	Status  string    `json:"status"`
}

type ackResponse struct {
	Status string `json:"status"`
}

type attemptResponse struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	ChannelID      *uuid.UUID `json:"channel_id,omitempty"`
	ChannelKind    string     `json:"channel_kind,omitempty"`
	MessageKind    string     `json:"message_kind"`
	Outcome        string     `json:"outcome"`
	Tries          int        `json:"tries"`
	Error          string     `json:"error,omitempty"`
	DurationMS     int64      `json:"duration_ms,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toAttemptResponse(a delivery.Attempt) attemptResponse {
	resp := attemptResponse{
		ID:          a.ID,
		ChannelID:   a.ChannelID,
		ChannelKind: string(a.ChannelKind),
		MessageKind: a.MessageKind,
		Outcome:     string(a.Outcome),
		Tries:       a.Tries,
		Error:       a.Error,
		DurationMS:  a.Duration.Milliseconds(),
		CreatedAt:   a.CreatedAt,
	}
	if a.SubscriptionID != uuid.Nil {
		id := a.SubscriptionID
		resp.SubscriptionID = &id
	}
	return resp
}

type reminderResponse struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Offset         string    `json:"offset"`
	FireAt         time.Time `json:"fire_at"`
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !a.decode(w, r, &req) || !a.check(w, req) {
		return
	}

	evt := event.Event{
		OrganizerID: req.OrganizerID,
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Public:      req.Public,
	}
	if req.ID != nil {
		evt.ID = *req.ID
	}

	created, err := a.svc.CreateEvent(r.Context(), evt)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusCreated, toEventResponse(created))
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	evt, err := a.svc.Event(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusOK, toEventResponse(evt))
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	organizerID, err := uuid.Parse(r.URL.Query().Get("organizer_id"))
	if err != nil || organizerID == uuid.Nil {
		a.writeBadRequest(w, "organizer_id query parameter is required")
		return
	}

	evts, err := a.svc.EventsByOrganizer(r.Context(), organizerID)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	out := make([]eventResponse, 0, len(evts))
	for _, evt := range evts {
		out = append(out, toEventResponse(evt))
	}
	a.writeData(w, http.StatusOK, out)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req updateEventRequest
	if !a.decode(w, r, &req) {
		return
	}

	updated, err := a.svc.UpdateEvent(r.Context(), id, soonish.EventUpdate{
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		ClearEnd:    req.ClearEnd,
		Public:      req.Public,
	})
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusOK, toEventResponse(updated))
}

func (a *API) cancelEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}

	// The reason body is optional on a DELETE.
	var req cancelEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.writeBadRequest(w, "malformed request body")
		return
	}

	if err := a.svc.CancelEvent(r.Context(), id, req.Reason); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

func (a *API) eventStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	status, err := a.svc.EventStatus(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusOK, statusResponse{EventID: id, Status: status})
}

func (a *API) deliveryReport(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	sum, err := a.svc.DeliveryReport(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusOK, sum)
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	attempts, err := a.svc.Attempts(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, toAttemptResponse(attempt))
	}
	a.writeData(w, http.StatusOK, out)
}

func (a *API) listReminders(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	upcoming, err := a.svc.UpcomingReminders(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	out := make([]reminderResponse, 0, len(upcoming))
	for _, rem := range upcoming {
		out = append(out, reminderResponse{
			SubscriptionID: rem.SubscriptionID,
			Offset:         rem.Offset.String(),
			FireAt:         rem.FireAt,
		})
	}
	a.writeData(w, http.StatusOK, out)
}

func (a *API) postNote(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req noteRequest
	if !a.decode(w, r, &req) || !a.check(w, req) {
		return
	}

	if err := a.svc.Notify(r.Context(), id, req.Subject, req.Body, req.SubscriptionIDs...); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	eventID, ok := a.pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req subscribeRequest
	if !a.decode(w, r, &req) || !a.check(w, req) {
		return
	}

	offsets, err := parseOffsets(req.Offsets)
	if err != nil {
		a.writeBadRequest(w, err.Error())
		return
	}

	sub, err := a.svc.Subscribe(r.Context(), eventID, req.UserID, offsets...)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func parseOffsets(raw []string) ([]time.Duration, error) {
	offsets := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, errors.New("offsets must be duration strings such as \"24h\" or \"90m\"")
		}
		offsets = append(offsets, d)
	}
	return offsets, nil
}
