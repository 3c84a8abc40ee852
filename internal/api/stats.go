package api

import (
	"context"
	"net/http"

	"github.com/forumhq/webhooks/internal/domain"
	ws "github.com/forumhq/webhooks/internal/websocket"
)

// StatsSource provides aggregated delivery statistics.
type StatsSource interface {
	DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error)
}

type StatsHandler struct {
	stats StatsSource
	hub   *ws.Hub
}

func NewStatsHandler(stats StatsSource, hub *ws.Hub) *StatsHandler {
	return &StatsHandler{stats: stats, hub: hub}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.DeliveryStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	type statsResponse struct {
		domain.DeliveryStats
		WebSocketClients int `json:"websocket_clients"`
	}

	resp := statsResponse{DeliveryStats: *stats}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}
