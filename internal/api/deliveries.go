package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/forumhq/webhooks/internal/domain"
)

// AttemptLister reads back the recorded delivery attempts.
type AttemptLister interface {
	ListAttempts(ctx context.Context, eventID, subscriptionID, status string, limit int) ([]domain.DeliveryAttempt, error)
}

type DeliveryHandler struct {
	attempts AttemptLister
}

func NewDeliveryHandler(attempts AttemptLister) *DeliveryHandler {
	return &DeliveryHandler{attempts: attempts}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	subscriptionID := r.URL.Query().Get("subscription_id")
	status := r.URL.Query().Get("status")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	attempts, err := h.attempts.ListAttempts(r.Context(), eventID, subscriptionID, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list delivery attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}
