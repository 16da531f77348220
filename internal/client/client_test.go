package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opsforge/automator/internal/config"
	"github.com/opsforge/automator/model"
)

func testBackendConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
		Retry: config.RetryConfig{
			MaxAttempts:       3,
			BackoffInitial:    time.Millisecond,
			BackoffMultiplier: 2,
			BackoffMax:        5 * time.Millisecond,
			IdempotentOnly:    true,
		},
	}
}

func TestListRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/rules" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "name": "Urgent alert", "trigger_platform": "zendesk", "trigger_event": "ticket_tag_added", "trigger_data": "{\"tag\": \"urgent\"}", "actions": "[]"}]`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	rules, err := c.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	if rules[0].ID.String() != "1" || rules[0].Name != "Urgent alert" {
		t.Errorf("rule = %+v", rules[0])
	}
}

func TestCreateRule_sendsWireBody(t *testing.T) {
	var received model.WireRule
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rules" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		received.ID = json.Number("9")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(received)
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	saved, err := c.CreateRule(context.Background(), model.WireRule{
		Name:            "New Rule",
		TriggerPlatform: "zendesk",
		TriggerEvent:    "ticket_created",
		TriggerData:     `{"tag": ""}`,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if saved.ID.String() != "9" {
		t.Errorf("saved id = %q, want 9", saved.ID)
	}
	if received.TriggerPlatform != "zendesk" {
		t.Errorf("backend received %+v", received)
	}
}

func TestBackendDetailErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{status: 404, body: `{"detail": "Rule not found"}`, wantCode: model.ErrNotFound, wantMsg: "Rule not found"},
		{status: 409, body: `{"detail": "duplicate"}`, wantCode: model.ErrConflict, wantMsg: "duplicate"},
		{status: 422, body: `{"detail": "invalid trigger_data"}`, wantCode: model.ErrValidationError, wantMsg: "invalid trigger_data"},
		{status: 400, body: `plain text error`, wantCode: model.ErrBadRequest, wantMsg: "plain text error"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		c := New(testBackendConfig(srv.URL), nil)
		_, err := c.GetRule(context.Background(), "1")
		srv.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		ee, ok := err.(*model.ErrorEnvelope)
		if !ok {
			t.Errorf("status %d: error = %T, want envelope", tt.status, err)
			continue
		}
		if ee.Code != tt.wantCode || ee.Message != tt.wantMsg {
			t.Errorf("status %d: envelope = (%s, %q), want (%s, %q)", tt.status, ee.Code, ee.Message, tt.wantCode, tt.wantMsg)
		}
	}
}

func TestRetry_idempotentOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id": 1, "trigger_platform": "zendesk", "trigger_event": "ticket_created", "trigger_data": "{}"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	rule, err := c.GetRule(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if rule.ID.String() != "1" {
		t.Errorf("rule id = %q", rule.ID)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("backend calls = %d, want 3", got)
	}
}

func TestRetry_postNotRetriedWhenIdempotentOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail": "backend down"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	_, err := c.CreateRule(context.Background(), model.WireRule{})
	if err == nil {
		t.Fatal("expected error")
	}
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrBackendUnavailable {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, POST must not be retried", got)
	}
}

func TestRetry_exhaustedReturnsLastStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	_, err := c.GetRule(context.Background(), "1")
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("backend calls = %d, want max attempts 3", got)
	}
}

func TestConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	cfg := testBackendConfig(base)
	cfg.Retry.MaxAttempts = 1
	c := New(cfg, nil)

	_, err := c.ListRules(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrBackendUnavailable {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE", err)
	}
}

func TestBreakerOpensAndHealthCheckFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testBackendConfig(srv.URL)
	cfg.CircuitBreaker.FailureThreshold = 2
	cfg.Retry.MaxAttempts = 1
	c := New(cfg, nil)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() before failures = %v", err)
	}

	c.GetRule(context.Background(), "1")
	c.GetRule(context.Background(), "1")

	if c.BreakerState() != BreakerOpen {
		t.Fatalf("breaker state = %v, want open", c.BreakerState())
	}
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail while the breaker is open")
	}

	// Requests are rejected without reaching the backend.
	_, err := c.GetRule(context.Background(), "1")
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrBackendUnavailable {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE from open breaker", err)
	}
}

func TestDeleteRule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/rules/12" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	if err := c.DeleteRule(context.Background(), "12"); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
}

func TestListIntegrations_decodesWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 4, "name": "Team Slack", "integration_type": "slack", "config": {"bot_token": "xoxb-secret"}, "created_at": "2026-08-01T10:00:00.123456"}]`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	integrations, err := c.ListIntegrations(context.Background())
	if err != nil {
		t.Fatalf("ListIntegrations() error = %v", err)
	}
	if len(integrations) != 1 {
		t.Fatalf("integrations = %d, want 1", len(integrations))
	}
	in := integrations[0]
	if in.ID != "4" || in.IntegrationType != "slack" {
		t.Errorf("integration = %+v", in)
	}
	if in.Config["bot_token"] != "xoxb-secret" {
		t.Errorf("config = %v", in.Config)
	}
	if in.CreatedAt.IsZero() {
		t.Error("created_at with fractional seconds and no zone should parse")
	}
}

func TestCreateIntegration_sendsOnlyWritableFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		for _, k := range []string{"id", "user_id", "created_at"} {
			if _, ok := body[k]; ok {
				t.Errorf("request body must not carry %q: %v", k, body)
			}
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 8, "name": "Team Slack", "integration_type": "slack"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	saved, err := c.CreateIntegration(context.Background(), model.Integration{
		ID:              "should-not-be-sent",
		Name:            "Team Slack",
		IntegrationType: "slack",
		Config:          map[string]string{"bot_token": "xoxb"},
	})
	if err != nil {
		t.Fatalf("CreateIntegration() error = %v", err)
	}
	if saved.ID != "8" {
		t.Errorf("saved id = %q, want 8", saved.ID)
	}
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/integrations/test" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"success": true, "message": "Connected"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	result, err := c.TestConnection(context.Background(), model.TestConnectionRequest{
		IntegrationType: "slack",
		Config:          map[string]string{"bot_token": "xoxb"},
	})
	if err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if !result.Success || result.Message != "Connected" {
		t.Errorf("result = %+v", result)
	}
}

func TestTriggerWebhook_forwardsVerbatim(t *testing.T) {
	const payload = `{"ticket": {"id": 12345, "tags": ["urgent"]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trigger/zendesk" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := json.Marshal(map[string]any{"matched_rules": 2})
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	status, body, err := c.TriggerWebhook(context.Background(), "zendesk", []byte(payload))
	if err != nil {
		t.Fatalf("TriggerWebhook() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("response body: %v", err)
	}
	if resp["matched_rules"] != float64(2) {
		t.Errorf("response = %v", resp)
	}
}

func TestTriggerWebhook_backendErrorStatusIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "no rules for platform"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), nil)
	// The simulator displays the backend's status and body as-is, so a
	// non-2xx response is not an error at this layer.
	status, body, err := c.TriggerWebhook(context.Background(), "zendesk", []byte(`{}`))
	if err != nil {
		t.Fatalf("TriggerWebhook() error = %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if len(body) == 0 {
		t.Error("body should carry the backend response")
	}
}
