package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
)

type subscriptionResponse struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	Active    bool      `json:"active"`
	Offsets   []string  `json:"offsets,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toSubscriptionResponse(sub event.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:        sub.ID,
		EventID:   sub.EventID,
		UserID:    sub.UserID,
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
	}
	for _, off := range sub.Offsets {
		resp.Offsets = append(resp.Offsets, off.String())
	}
	return resp
}

type selectorRequest struct {
	ChannelID *uuid.UUID `json:"channel_id"`
	Tag       string     `json:"tag"`
}

type selectorResponse struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	ChannelID      *uuid.UUID `json:"channel_id,omitempty"`
	Tag            string     `json:"tag,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toSelectorResponse(sel event.Selector) selectorResponse {
	return selectorResponse{
		ID:             sel.ID,
		SubscriptionID: sel.SubscriptionID,
		ChannelID:      sel.ChannelID,
		Tag:            sel.Tag,
		CreatedAt:      sel.CreatedAt,
	}
}

func (a *API) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "subscriptionID")
	if !ok {
		return
	}
	sub, err := a.svc.Subscription(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (a *API) unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "subscriptionID")
	if !ok {
		return
	}
	if err := a.svc.Unsubscribe(r.Context(), id); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSelectors(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "subscriptionID")
	if !ok {
		return
	}
	selectors, err := a.svc.SelectorsForSubscription(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	out := make([]selectorResponse, 0, len(selectors))
	for _, sel := range selectors {
		out = append(out, toSelectorResponse(sel))
	}
	a.writeData(w, http.StatusOK, out)
}

func (a *API) addSelector(w http.ResponseWriter, r *http.Request) {
	subscriptionID, ok := a.pathID(w, r, "subscriptionID")
	if !ok {
		return
	}
	var req selectorRequest
	if !a.decode(w, r, &req) {
		return
	}

	sel, err := a.svc.AddSelector(r.Context(), event.Selector{
		SubscriptionID: subscriptionID,
		ChannelID:      req.ChannelID,
		Tag:            req.Tag,
	})
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusCreated, toSelectorResponse(sel))
}

func (a *API) removeSelector(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "selectorID")
	if !ok {
		return
	}
	if err := a.svc.RemoveSelector(r.Context(), id); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
