package domain

import (
	"time"
)

// Subscription statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusError    = "error"
)

// Subscription represents one external endpoint's interest in domain events.
type Subscription struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	TargetURL       string     `json:"target_url"`
	EventTypes      []string   `json:"event_types"`
	Secret          string     `json:"secret,omitempty"`
	Status          string     `json:"status"`
	FailureCount    int        `json:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt   *time.Time `json:"last_success_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Wants reports whether the subscription is subscribed to the given event
// type. An empty EventTypes list never matches.
func (s *Subscription) Wants(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

type CreateSubscriptionRequest struct {
	OwnerID    string   `json:"owner_id"`
	TargetURL  string   `json:"target_url"`
	EventTypes []string `json:"event_types"`
}

type UpdateSubscriptionRequest struct {
	TargetURL  *string  `json:"target_url,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	Status     *string  `json:"status,omitempty"`
}

type CreateSubscriptionResponse struct {
	ID        string `json:"id"`
	TargetURL string `json:"target_url"`
	Secret    string `json:"secret"`
}
