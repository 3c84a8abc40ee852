package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/health"
	"github.com/forumhq/webhooks/internal/registry"
	"github.com/forumhq/webhooks/internal/signature"
	ws "github.com/forumhq/webhooks/internal/websocket"
)

// Job carries everything one delivery attempt needs. Body holds the
// canonical serialization of the event; the same bytes are signed and sent.
type Job struct {
	EventID        string
	SubscriptionID string
	TargetURL      string
	Secret         string
	EventType      string
	Body           []byte
}

// AttemptLog records delivery outcomes for later inspection. Recording is
// best-effort; a failed write never affects the delivery itself.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error
}

// Deliverer handles the HTTP delivery of webhook payloads to subscription
// endpoints and feeds outcomes back into the subscription's health state.
type Deliverer struct {
	httpClient *http.Client
	registry   registry.Registry
	attempts   AttemptLog
	limiter    *RateLimiter
	hub        *ws.Hub
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer with a configured HTTP client. attempts,
// limiter, and hub may be nil.
func NewDeliverer(reg registry.Registry, attempts AttemptLog, limiter *RateLimiter, hub *ws.Hub, timeout time.Duration, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		registry: reg,
		attempts: attempts,
		limiter:  limiter,
		hub:      hub,
		logger:   logger,
	}
}

// Deliver sends the webhook payload to the subscription endpoint via HTTP
// POST. It signs the body with HMAC-SHA256, classifies the outcome (any 2xx
// is success, everything else including timeouts is failure), and records it.
func (d *Deliverer) Deliver(ctx context.Context, job Job) {
	start := time.Now()

	if d.limiter != nil && !d.limiter.Allow(ctx, job.SubscriptionID) {
		d.logger.Debug("delivery skipped by rate limit",
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
		)
		return
	}

	sig := signature.Sign(job.Secret, job.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.TargetURL, bytes.NewReader(job.Body))
	if err != nil {
		// Malformed target URL that slipped past creation-time validation.
		d.recordOutcome(ctx, job, start, nil, fmt.Sprintf("failed to create request: %v", err))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Event", job.EventType)
	req.Header.Set("X-Webhook-ID", job.EventID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.recordOutcome(ctx, job, start, nil, fmt.Sprintf("request failed: %v", err))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.recordOutcome(ctx, job, start, &resp.StatusCode, "")
	} else {
		d.recordOutcome(ctx, job, start, &resp.StatusCode, fmt.Sprintf("endpoint returned %d", resp.StatusCode))
	}
}

// recordOutcome applies the health transition, logs the attempt, and
// broadcasts it. None of the failure paths here propagate to the caller.
func (d *Deliverer) recordOutcome(ctx context.Context, job Job, start time.Time, statusCode *int, errMsg string) {
	elapsed := time.Since(start).Milliseconds()
	now := time.Now()

	status := domain.DeliverySuccess
	if errMsg != "" {
		status = domain.DeliveryFailed
	}

	if status == domain.DeliverySuccess {
		if err := d.registry.RecordSuccess(ctx, job.SubscriptionID, now); err != nil {
			// Health update lost; the next attempt or sweep will catch up.
			d.logger.Error("failed to persist delivery success",
				"error", err,
				"subscription_id", job.SubscriptionID,
			)
		}
	} else {
		updated, err := d.registry.RecordFailure(ctx, job.SubscriptionID, now)
		if err != nil {
			d.logger.Error("failed to persist delivery failure",
				"error", err,
				"subscription_id", job.SubscriptionID,
			)
		} else if updated.Status == domain.StatusError && updated.FailureCount == health.ErrorThreshold {
			d.logger.Warn("subscription demoted to error",
				"subscription_id", job.SubscriptionID,
				"failure_count", updated.FailureCount,
			)
		}
	}

	if d.attempts != nil {
		var msg *string
		if errMsg != "" {
			msg = &errMsg
		}
		err := d.attempts.RecordAttempt(ctx, domain.DeliveryAttempt{
			EventID:        job.EventID,
			SubscriptionID: job.SubscriptionID,
			EventType:      job.EventType,
			Status:         status,
			HTTPStatusCode: statusCode,
			ResponseTimeMs: int(elapsed),
			ErrorMessage:   msg,
			CreatedAt:      now,
		})
		if err != nil {
			d.logger.Error("failed to record delivery attempt",
				"error", err,
				"event_id", job.EventID,
				"subscription_id", job.SubscriptionID,
			)
		}
	}

	if d.hub != nil {
		updateType := "delivery_success"
		if status == domain.DeliveryFailed {
			updateType = "delivery_failed"
		}
		d.hub.Broadcast(ws.Update{
			Type:           updateType,
			EventID:        job.EventID,
			SubscriptionID: job.SubscriptionID,
			TargetURL:      job.TargetURL,
			EventType:      job.EventType,
			StatusCode:     statusCode,
			ResponseMs:     elapsed,
			Error:          errMsg,
			Timestamp:      now,
		})
	}

	if status == domain.DeliverySuccess {
		d.logger.Info("delivery successful",
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
			"status_code", statusCode,
			"response_time_ms", elapsed,
		)
	} else {
		d.logger.Warn("delivery failed",
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
			"error", errMsg,
			"status_code", statusCode,
			"response_time_ms", elapsed,
		)
	}
}
