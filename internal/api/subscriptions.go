package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SubscriptionHandler struct {
	registry registry.Registry
}

func NewSubscriptionHandler(reg registry.Registry) *SubscriptionHandler {
	return &SubscriptionHandler{registry: reg}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	if !isValidTargetURL(req.TargetURL) {
		respondError(w, http.StatusBadRequest, "target_url must be a valid absolute URL")
		return
	}
	if len(req.EventTypes) == 0 {
		respondError(w, http.StatusBadRequest, "at least one event_type is required")
		return
	}

	secret, err := generateSecret()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	now := time.Now()
	sub := &domain.Subscription{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		TargetURL:  req.TargetURL,
		EventTypes: dedupe(req.EventTypes),
		Secret:     secret,
		Status:     domain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.registry.Create(r.Context(), sub); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// The secret is returned exactly once, at creation time.
	respondJSON(w, http.StatusCreated, domain.CreateSubscriptionResponse{
		ID:        sub.ID,
		TargetURL: sub.TargetURL,
		Secret:    sub.Secret,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.registry.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	for i := range subs {
		subs[i].Secret = ""
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TargetURL != nil && !isValidTargetURL(*req.TargetURL) {
		respondError(w, http.StatusBadRequest, "target_url must be a valid absolute URL")
		return
	}
	if req.Status != nil && *req.Status != domain.StatusActive && *req.Status != domain.StatusInactive {
		respondError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}
	if req.EventTypes != nil {
		req.EventTypes = dedupe(req.EventTypes)
	}

	sub, err := h.registry.Update(r.Context(), id, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.registry.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health exposes the delivery-health state of one subscription.
func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	type healthResponse struct {
		SubscriptionID  string     `json:"subscription_id"`
		TargetURL       string     `json:"target_url"`
		Status          string     `json:"status"`
		FailureCount    int        `json:"failure_count"`
		LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
		LastSuccessAt   *time.Time `json:"last_success_at,omitempty"`
	}

	respondJSON(w, http.StatusOK, healthResponse{
		SubscriptionID:  sub.ID,
		TargetURL:       sub.TargetURL,
		Status:          sub.Status,
		FailureCount:    sub.FailureCount,
		LastTriggeredAt: sub.LastTriggeredAt,
		LastSuccessAt:   sub.LastSuccessAt,
	})
}

func isValidTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func dedupe(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func generateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}
