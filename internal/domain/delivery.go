package domain

import (
	"time"
)

// Delivery attempt outcomes.
const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// DeliveryAttempt is one recorded attempt to POST an event to a
// subscription's endpoint.
type DeliveryAttempt struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	SubscriptionID string    `json:"subscription_id"`
	EventType      string    `json:"event_type"`
	Status         string    `json:"status"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeliveryStats holds aggregated delivery statistics for the stats endpoint.
type DeliveryStats struct {
	TotalDeliveries      int     `json:"total_deliveries"`
	SuccessCount         int     `json:"success_count"`
	FailedCount          int     `json:"failed_count"`
	SuccessRate          float64 `json:"success_rate"`
	AvgResponseMs        float64 `json:"avg_response_ms"`
	ActiveSubscriptions  int     `json:"active_subscriptions"`
	ErroredSubscriptions int     `json:"errored_subscriptions"`
}
