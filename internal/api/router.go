package api

import (
	"net/http"

	"github.com/forumhq/webhooks/internal/dispatch"
	"github.com/forumhq/webhooks/internal/registry"
	ws "github.com/forumhq/webhooks/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router. attempts, stats, and hub
// may be nil when the corresponding backends are not wired (embedded use).
func NewRouter(reg registry.Registry, dispatcher *dispatch.Dispatcher, attempts AttemptLister, stats StatsSource, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	subHandler := NewSubscriptionHandler(reg)
	eventHandler := NewEventHandler(dispatcher)

	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Patch("/{id}", subHandler.Update)
			r.Delete("/{id}", subHandler.Delete)
			r.Get("/{id}/health", subHandler.Health)
		})

		r.Post("/events", eventHandler.Publish)

		if attempts != nil {
			deliveryHandler := NewDeliveryHandler(attempts)
			r.Get("/deliveries", deliveryHandler.List)
		}

		if stats != nil {
			statsHandler := NewStatsHandler(stats, hub)
			r.Get("/stats", statsHandler.Get)
		}
	})

	return r
}
