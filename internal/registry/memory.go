package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/health"
)

// Memory is an in-process Registry backed by a map. It applies the same
// health transitions as the Postgres implementation, via the health package,
// under a single mutex.
type Memory struct {
	mu   sync.Mutex
	subs map[string]domain.Subscription
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]domain.Subscription)}
}

func (m *Memory) Create(ctx context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[sub.ID]; ok {
		return fmt.Errorf("subscription %s already exists", sub.ID)
	}
	m.subs[sub.ID] = *sub
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (m *Memory) List(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := []domain.Subscription{}
	for _, sub := range m.subs {
		if ownerID == "" || sub.OwnerID == ownerID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (m *Memory) Update(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, nil
	}

	if req.TargetURL != nil {
		sub.TargetURL = *req.TargetURL
	}
	if req.EventTypes != nil {
		sub.EventTypes = req.EventTypes
	}
	if req.Status != nil {
		// Reactivating an inactive or errored subscription clears its
		// failure counter; an already-active one keeps the count.
		if *req.Status == domain.StatusActive && sub.Status != domain.StatusActive {
			sub.FailureCount = 0
		}
		sub.Status = *req.Status
	}
	sub.UpdatedAt = time.Now()

	m.subs[id] = sub
	return &sub, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs, id)
	return nil
}

func (m *Memory) FindMatching(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []domain.Subscription
	for _, sub := range m.subs {
		if sub.Status == domain.StatusActive && sub.Wants(eventType) {
			matches = append(matches, sub)
		}
	}
	return matches, nil
}

func (m *Memory) FindStaleErrored(ctx context.Context, retryWindow time.Duration) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-retryWindow)

	var stale []domain.Subscription
	for _, sub := range m.subs {
		if sub.Status == domain.StatusError && sub.FailureCount < health.ErrorThreshold && !sub.UpdatedAt.After(cutoff) {
			stale = append(stale, sub)
		}
	}
	return stale, nil
}

func (m *Memory) FindExpiredErrored(ctx context.Context, retentionWindow time.Duration) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-retentionWindow)

	var expired []domain.Subscription
	for _, sub := range m.subs {
		if sub.Status == domain.StatusError && sub.FailureCount >= health.ErrorThreshold && !sub.UpdatedAt.After(cutoff) {
			expired = append(expired, sub)
		}
	}
	return expired, nil
}

func (m *Memory) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	m.subs[id] = health.OnSuccess(sub, now)
	return nil
}

func (m *Memory) RecordFailure(ctx context.Context, id string, now time.Time) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", id)
	}
	sub = health.OnFailure(sub, now)
	m.subs[id] = sub
	return &sub, nil
}

func (m *Memory) Reset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok || sub.Status != domain.StatusError {
		return nil
	}
	sub.FailureCount = 0
	sub.Status = domain.StatusActive
	sub.UpdatedAt = time.Now()
	m.subs[id] = sub
	return nil
}
