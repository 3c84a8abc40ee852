package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forumhq/webhooks/internal/dispatch"
	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/registry"
)

func testRouter(t *testing.T, reg registry.Registry) (http.Handler, *dispatch.Dispatcher) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	deliverer := dispatch.NewDeliverer(reg, nil, nil, nil, 5*time.Second, logger)
	dispatcher := dispatch.NewDispatcher(reg, deliverer, logger)
	return NewRouter(reg, dispatcher, nil, nil, nil), dispatcher
}

func TestCreateSubscription(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	body := `{"owner_id":"user-1","target_url":"https://example.com/hooks","event_types":["post.created","post.created","comment.created"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.CreateSubscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == "" {
		t.Error("response should include the new subscription ID")
	}
	if resp.Secret == "" {
		t.Error("response should include the secret exactly once")
	}

	sub, _ := reg.Get(context.Background(), resp.ID)
	if sub == nil {
		t.Fatal("subscription was not persisted")
	}
	if sub.Status != domain.StatusActive {
		t.Errorf("new subscription status = %q, want active", sub.Status)
	}
	// Duplicate event types collapse under set semantics
	if len(sub.EventTypes) != 2 {
		t.Errorf("EventTypes = %v, want deduplicated pair", sub.EventTypes)
	}
}

func TestCreateSubscription_Validation(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	tests := []struct {
		name string
		body string
	}{
		{"missing owner", `{"target_url":"https://example.com","event_types":["a"]}`},
		{"relative url", `{"owner_id":"u","target_url":"/hooks","event_types":["a"]}`},
		{"bad scheme", `{"owner_id":"u","target_url":"ftp://example.com","event_types":["a"]}`},
		{"no event types", `{"owner_id":"u","target_url":"https://example.com","event_types":[]}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetSubscription_HidesSecret(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	reg.Create(context.Background(), &domain.Subscription{
		ID:     "sub-1",
		Secret: "whsec_super_secret",
		Status: domain.StatusActive,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/sub-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("whsec_super_secret")) {
		t.Error("secret must never appear in read responses")
	}
}

func TestGetSubscription_NotFound(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateSubscription_ReactivationResetsFailureCount(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	reg.Create(context.Background(), &domain.Subscription{
		ID:           "sub-err",
		TargetURL:    "https://example.com/hooks",
		Status:       domain.StatusError,
		FailureCount: 5,
	})

	body := `{"status":"active"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/subscriptions/sub-err", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	sub, _ := reg.Get(context.Background(), "sub-err")
	if sub.Status != domain.StatusActive || sub.FailureCount != 0 {
		t.Errorf("got status=%q failures=%d, want active/0", sub.Status, sub.FailureCount)
	}
}

func TestSubscriptionHealthEndpoint(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	reg.Create(context.Background(), &domain.Subscription{
		ID:           "sub-h",
		TargetURL:    "https://example.com/hooks",
		Status:       domain.StatusError,
		FailureCount: 6,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/sub-h/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status       string `json:"status"`
		FailureCount int    `json:"failure_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != domain.StatusError || resp.FailureCount != 6 {
		t.Errorf("health = %+v, want error/6", resp)
	}
}

func TestPublishEvent(t *testing.T) {
	var received atomic.Int32
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	reg := registry.NewMemory()
	reg.Create(context.Background(), &domain.Subscription{
		ID:         "sub-1",
		TargetURL:  endpoint.URL,
		Secret:     "s",
		Status:     domain.StatusActive,
		EventTypes: []string{"post.created"},
	})

	router, dispatcher := testRouter(t, reg)

	body := `{"type":"post.created","payload":{"id":1}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		EventID             string `json:"event_id"`
		DeliveriesInitiated int    `json:"deliveries_initiated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.DeliveriesInitiated != 1 {
		t.Errorf("deliveries_initiated = %d, want 1", resp.DeliveriesInitiated)
	}

	dispatcher.Wait()
	if received.Load() != 1 {
		t.Errorf("endpoint received %d deliveries, want 1", received.Load())
	}
}

func TestPublishEvent_Validation(t *testing.T) {
	reg := registry.NewMemory()
	router, _ := testRouter(t, reg)

	tests := []struct {
		name string
		body string
	}{
		{"missing type", `{"payload":{"id":1}}`},
		{"missing payload", `{"type":"post.created"}`},
		{"invalid payload", `{"type":"post.created","payload":{bad}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}
