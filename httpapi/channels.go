package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
)

type addChannelRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Kind   string    `json:"kind" validate:"required"`
	Target string    `json:"target" validate:"required"`
	Label  string    `json:"label"`
	Tag    string    `json:"tag"`
}

// channelResponse deliberately has no target field. Targets are secrets:
// accepted on registration, never echoed back.
type channelResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toChannelResponse(ch event.Channel) channelResponse {
	return channelResponse{
		ID:        ch.ID,
		UserID:    ch.UserID,
		Kind:      string(ch.Kind),
		Label:     ch.Label,
		Tag:       ch.Tag,
		Active:    ch.Active,
		CreatedAt: ch.CreatedAt,
	}
}

func (a *API) addChannel(w http.ResponseWriter, r *http.Request) {
	var req addChannelRequest
	if !a.decode(w, r, &req) || !a.check(w, req) {
		return
	}

	ch, err := a.svc.AddChannel(r.Context(), event.Channel{
		UserID: req.UserID,
		Kind:   event.ChannelKind(req.Kind),
		Target: event.Target(req.Target),
		Label:  req.Label,
		Tag:    req.Tag,
	})
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeData(w, http.StatusCreated, toChannelResponse(ch))
}

func (a *API) deactivateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "channelID")
	if !ok {
		return
	}
	if err := a.svc.DeactivateChannel(r.Context(), id); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	channels, err := a.svc.ChannelsForUser(r.Context(), userID)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	out := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, toChannelResponse(ch))
	}
	a.writeData(w, http.StatusOK, out)
}
