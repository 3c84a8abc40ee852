package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/health"
	"github.com/forumhq/webhooks/internal/registry"
	"github.com/forumhq/webhooks/internal/signature"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memoryAttempts is an in-process AttemptLog for tests.
type memoryAttempts struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
}

func (m *memoryAttempts) RecordAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memoryAttempts) all() []domain.DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeliveryAttempt{}, m.attempts...)
}

func TestDeliver_SuccessfulEndpoint(t *testing.T) {
	var receivedCount atomic.Int32
	var mu sync.Mutex
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedCount.Add(1)
		mu.Lock()
		receivedHeaders = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{
		ID:     "sub-test-1",
		Status: domain.StatusActive,
	})

	attempts := &memoryAttempts{}
	deliverer := NewDeliverer(reg, attempts, nil, nil, 5*time.Second, testLogger())

	deliverer.Deliver(context.Background(), Job{
		EventID:        "evt-test-1",
		SubscriptionID: "sub-test-1",
		TargetURL:      server.URL,
		Secret:         "test-secret",
		EventType:      "post.created",
		Body:           []byte(`{"test":true}`),
	})

	if receivedCount.Load() != 1 {
		t.Fatalf("expected 1 request to endpoint, got %d", receivedCount.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if receivedHeaders.Get("X-Webhook-Event") != "post.created" {
		t.Errorf("X-Webhook-Event = %q, want %q", receivedHeaders.Get("X-Webhook-Event"), "post.created")
	}
	if receivedHeaders.Get("X-Webhook-ID") != "evt-test-1" {
		t.Errorf("X-Webhook-ID = %q, want %q", receivedHeaders.Get("X-Webhook-ID"), "evt-test-1")
	}
	if receivedHeaders.Get("X-Webhook-Signature") == "" {
		t.Error("X-Webhook-Signature should be set")
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want %q", receivedHeaders.Get("Content-Type"), "application/json")
	}

	sub, _ := reg.Get(context.Background(), "sub-test-1")
	if sub.LastTriggeredAt == nil || sub.LastSuccessAt == nil {
		t.Error("successful delivery should stamp LastTriggeredAt and LastSuccessAt")
	}

	recs := attempts.all()
	if len(recs) != 1 || recs[0].Status != domain.DeliverySuccess {
		t.Errorf("expected one success attempt record, got %+v", recs)
	}
}

func TestDeliver_SignatureVerifiesAgainstBody(t *testing.T) {
	var mu sync.Mutex
	var receivedSig string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		receivedSig = r.Header.Get("X-Webhook-Signature")
		receivedBody, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{ID: "sub-sig", Status: domain.StatusActive})

	secret := "my-webhook-secret"
	deliverer := NewDeliverer(reg, nil, nil, nil, 5*time.Second, testLogger())

	deliverer.Deliver(context.Background(), Job{
		EventID:        "evt-sig",
		SubscriptionID: "sub-sig",
		TargetURL:      server.URL,
		Secret:         secret,
		EventType:      "post.created",
		Body:           []byte(`{"id":"abc-123"}`),
	})

	mu.Lock()
	defer mu.Unlock()
	// The receiver-side verification contract: HMAC over the raw body.
	if !signature.Verify(secret, receivedBody, receivedSig) {
		t.Errorf("signature %s does not verify against received body %s", receivedSig, receivedBody)
	}
}

func TestDeliver_FailureIncrementsHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{ID: "sub-fail", Status: domain.StatusActive})

	attempts := &memoryAttempts{}
	deliverer := NewDeliverer(reg, attempts, nil, nil, 5*time.Second, testLogger())

	job := Job{
		EventID:        "evt-fail",
		SubscriptionID: "sub-fail",
		TargetURL:      server.URL,
		Secret:         "secret",
		EventType:      "post.created",
		Body:           []byte(`{}`),
	}

	for i := 0; i < health.ErrorThreshold; i++ {
		deliverer.Deliver(context.Background(), job)
	}

	sub, _ := reg.Get(context.Background(), "sub-fail")
	if sub.FailureCount != health.ErrorThreshold {
		t.Errorf("FailureCount = %d, want %d", sub.FailureCount, health.ErrorThreshold)
	}
	if sub.Status != domain.StatusError {
		t.Errorf("Status = %q, want error", sub.Status)
	}
	if sub.LastSuccessAt != nil {
		t.Error("failed deliveries should not stamp LastSuccessAt")
	}

	recs := attempts.all()
	if len(recs) != health.ErrorThreshold {
		t.Fatalf("expected %d attempt records, got %d", health.ErrorThreshold, len(recs))
	}
	for _, rec := range recs {
		if rec.Status != domain.DeliveryFailed {
			t.Errorf("attempt status = %q, want failed", rec.Status)
		}
	}
}

func TestDeliver_ConnectionErrorIsFailure(t *testing.T) {
	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{ID: "sub-dead", Status: domain.StatusActive})

	deliverer := NewDeliverer(reg, nil, nil, nil, time.Second, testLogger())

	// Nothing listens here.
	deliverer.Deliver(context.Background(), Job{
		EventID:        "evt-dead",
		SubscriptionID: "sub-dead",
		TargetURL:      "http://127.0.0.1:1/webhook",
		Secret:         "secret",
		EventType:      "post.created",
		Body:           []byte(`{}`),
	})

	sub, _ := reg.Get(context.Background(), "sub-dead")
	if sub.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", sub.FailureCount)
	}
}

func TestDeliver_TimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{ID: "sub-slow", Status: domain.StatusActive})

	attempts := &memoryAttempts{}
	deliverer := NewDeliverer(reg, attempts, nil, nil, 50*time.Millisecond, testLogger())

	deliverer.Deliver(context.Background(), Job{
		EventID:        "evt-slow",
		SubscriptionID: "sub-slow",
		TargetURL:      server.URL,
		Secret:         "secret",
		EventType:      "post.created",
		Body:           []byte(`{}`),
	})

	sub, _ := reg.Get(context.Background(), "sub-slow")
	if sub.FailureCount != 1 {
		t.Errorf("endpoint exceeding the delivery timeout should count as failure, FailureCount = %d", sub.FailureCount)
	}
	if sub.LastTriggeredAt == nil {
		t.Error("timed-out delivery should still stamp LastTriggeredAt")
	}

	recs := attempts.all()
	if len(recs) != 1 || recs[0].Status != domain.DeliveryFailed {
		t.Errorf("expected one failed attempt record, got %+v", recs)
	}
}

func TestDeliver_MalformedURLIsFailure(t *testing.T) {
	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{ID: "sub-bad", Status: domain.StatusActive})

	deliverer := NewDeliverer(reg, nil, nil, nil, time.Second, testLogger())

	deliverer.Deliver(context.Background(), Job{
		EventID:        "evt-bad",
		SubscriptionID: "sub-bad",
		TargetURL:      "http://bad url with spaces",
		Secret:         "secret",
		EventType:      "post.created",
		Body:           []byte(`{}`),
	})

	sub, _ := reg.Get(context.Background(), "sub-bad")
	if sub.FailureCount != 1 {
		t.Errorf("malformed URL should count as delivery failure, FailureCount = %d", sub.FailureCount)
	}
}
