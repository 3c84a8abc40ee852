// Package dispatch fans domain events out to the subscriptions that want
// them. Each matching subscription gets its own delivery goroutine; the
// emitting caller returns as soon as every delivery has been initiated, so
// producers are never latency-coupled to subscriber endpoints.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/registry"
)

// Dispatcher resolves matching subscriptions for an event and delivers to
// each independently.
type Dispatcher struct {
	registry  registry.Registry
	deliverer *Deliverer
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(reg registry.Registry, deliverer *Deliverer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		deliverer: deliverer,
		logger:    logger,
	}
}

// Dispatch serializes the event once, finds the active subscriptions
// subscribed to its type, and launches one delivery goroutine per match.
// It returns the number of deliveries initiated. Individual delivery
// failures are absorbed by the deliverer and never surface here.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.Event) (int, error) {
	subs, err := d.registry.FindMatching(ctx, event.Type)
	if err != nil {
		return 0, fmt.Errorf("finding matching subscriptions: %w", err)
	}

	if len(subs) == 0 {
		d.logger.Info("no matching subscriptions", "event_id", event.ID, "event_type", event.Type)
		return 0, nil
	}

	// Canonical bytes: signed and sent as-is, so receivers can verify.
	body, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encoding event: %w", err)
	}

	// Deliveries outlive the emitting request.
	deliveryCtx := context.WithoutCancel(ctx)

	initiated := 0
	for _, sub := range subs {
		// Defensive re-check; the registry should already have filtered.
		if sub.Status != domain.StatusActive || !sub.Wants(event.Type) {
			continue
		}

		job := Job{
			EventID:        event.ID,
			SubscriptionID: sub.ID,
			TargetURL:      sub.TargetURL,
			Secret:         sub.Secret,
			EventType:      event.Type,
			Body:           body,
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliverer.Deliver(deliveryCtx, job)
		}()
		initiated++
	}

	d.logger.Info("dispatch initiated",
		"event_id", event.ID,
		"event_type", event.Type,
		"deliveries", initiated,
	)

	return initiated, nil
}

// Wait blocks until all in-flight deliveries have finished. Used on
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
