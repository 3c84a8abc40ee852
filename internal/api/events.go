package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/forumhq/webhooks/internal/dispatch"
	"github.com/forumhq/webhooks/internal/domain"
	"github.com/google/uuid"
)

// EventHandler is the inbound surface for domain-event emitters (post
// created, comment created, ...). Publishing returns as soon as deliveries
// have been initiated.
type EventHandler struct {
	dispatcher *dispatch.Dispatcher
}

func NewEventHandler(d *dispatch.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: d}
}

type publishEventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type publishEventResponse struct {
	EventID             string `json:"event_id"`
	Type                string `json:"type"`
	DeliveriesInitiated int    `json:"deliveries_initiated"`
}

func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	event := &domain.Event{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Payload:   req.Payload,
		CreatedAt: time.Now(),
	}

	initiated, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to dispatch event")
		return
	}

	respondJSON(w, http.StatusAccepted, publishEventResponse{
		EventID:             event.ID,
		Type:                event.Type,
		DeliveriesInitiated: initiated,
	})
}
