// Package registry defines the storage contract for webhook subscriptions.
// The dispatcher, health tracking, and reconciliation sweeps all speak to
// this interface; Postgres is the production implementation and Memory backs
// tests and embedded use.
package registry

import (
	"context"
	"time"

	"github.com/forumhq/webhooks/internal/domain"
)

// Registry stores webhook subscriptions and answers which subscriptions want
// a given event type.
//
// RecordSuccess and RecordFailure must apply their mutations atomically per
// subscription (increment and conditional status flip in one step), so that
// concurrent deliveries to the same subscription cannot lose updates.
type Registry interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	Get(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context, ownerID string) ([]domain.Subscription, error)
	Update(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error)
	Delete(ctx context.Context, id string) error

	// FindMatching returns active subscriptions subscribed to eventType.
	// Order is unspecified; callers must not rely on it.
	FindMatching(ctx context.Context, eventType string) ([]domain.Subscription, error)

	// FindStaleErrored returns errored subscriptions below the failure
	// threshold whose last update is older than retryWindow. These are the
	// soft-reset candidates.
	FindStaleErrored(ctx context.Context, retryWindow time.Duration) ([]domain.Subscription, error)

	// FindExpiredErrored returns errored subscriptions at or above the
	// failure threshold untouched for longer than retentionWindow. These
	// are permanently removed by the expiry sweep.
	FindExpiredErrored(ctx context.Context, retentionWindow time.Duration) ([]domain.Subscription, error)

	// RecordSuccess resets the failure state after a successful delivery.
	RecordSuccess(ctx context.Context, id string, now time.Time) error

	// RecordFailure increments the failure counter, demoting the
	// subscription to error at the threshold. It returns the updated
	// snapshot so callers can observe a status flip.
	RecordFailure(ctx context.Context, id string, now time.Time) (*domain.Subscription, error)

	// Reset returns an errored subscription to active with a clean failure
	// counter. Used by the soft-reset sweep.
	Reset(ctx context.Context, id string) error
}
