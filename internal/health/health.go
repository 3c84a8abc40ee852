// Package health holds the pure state-transition logic applied to a
// subscription after a delivery attempt. The functions operate on a snapshot
// and return the updated value; persisting the result is the registry's job.
package health

import (
	"time"

	"github.com/forumhq/webhooks/internal/domain"
)

// ErrorThreshold is the number of consecutive failures after which a
// subscription is demoted to the error status.
const ErrorThreshold = 5

// OnSuccess resets the failure state after a successful delivery. A
// subscription recovers to active even from the error status.
func OnSuccess(sub domain.Subscription, now time.Time) domain.Subscription {
	sub.FailureCount = 0
	sub.Status = domain.StatusActive
	sub.LastTriggeredAt = &now
	sub.LastSuccessAt = &now
	sub.UpdatedAt = now
	return sub
}

// OnFailure increments the consecutive-failure counter and demotes the
// subscription to error once the threshold is reached. Failed attempts still
// stamp LastTriggeredAt; LastSuccessAt is left alone.
func OnFailure(sub domain.Subscription, now time.Time) domain.Subscription {
	sub.FailureCount++
	if sub.FailureCount >= ErrorThreshold {
		sub.Status = domain.StatusError
	}
	sub.LastTriggeredAt = &now
	sub.UpdatedAt = now
	return sub
}
