// Package integration contains end to end tests that run the full console
// against a scripted mock of the automation backend.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/internal/client"
	"github.com/opsforge/automator/internal/config"
	"github.com/opsforge/automator/internal/editor"
	"github.com/opsforge/automator/internal/simulator"
	"github.com/opsforge/automator/internal/transport"
	"github.com/opsforge/automator/internal/wire"
)

// TestHarness wires the console's router, a live HTTP test server, and a
// scripted mock backend together for end to end tests.
type TestHarness struct {
	t       *testing.T
	Server  *httptest.Server
	Backend *MockBackend
	Config  *config.Config
	Client  *http.Client
}

// HarnessOption customizes harness configuration.
type HarnessOption func(*config.Config)

// WithCircuitBreaker overrides the backend circuit breaker settings.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Backend.CircuitBreaker = cb
	}
}

// WithRetry overrides the backend retry settings.
func WithRetry(r config.RetryConfig) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Backend.Retry = r
	}
}

// WithActionsEncoding sets the wire convention for the actions column.
func WithActionsEncoding(encoding string) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Wire.ActionsEncoding = encoding
	}
}

// WithBackendTimeout sets the per-request backend timeout.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Backend.Timeout = d
	}
}

// WithHandlerTimeout sets the per-request handler deadline.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Server.HandlerTimeout = d
	}
}

// WithSessionLimit caps the number of concurrent editing sessions.
func WithSessionLimit(n int) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Editor.MaxSessions = n
	}
}

// NewTestHarness creates a fully wired console with a mock backend. Both
// servers are shut down via t.Cleanup.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	backend := newMockBackend(t)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = backend.URL()
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Backend.Retry.MaxAttempts = 1
	cfg.Backend.Retry.BackoffInitial = time.Millisecond
	cfg.Observability.Metrics.Enabled = false

	for _, opt := range opts {
		opt(cfg)
	}

	cat := catalog.Default()
	be := client.New(cfg.Backend, nil)
	convention, err := wire.ParseConvention(cfg.Wire.ActionsEncoding)
	if err != nil {
		t.Fatalf("actions encoding: %v", err)
	}
	ser := wire.NewSerializer(convention)
	logger := zap.NewNop()

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Catalog:   cat,
		Editor:    editor.NewService(cfg.Editor, cat, be, ser, logger, nil),
		Simulator: simulator.New(be, cat, cfg.Simulator.LogCapacity),
		Backend:   be,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		t:       t,
		Server:  server,
		Backend: backend,
		Config:  cfg,
		Client:  server.Client(),
	}
}

// GET performs a GET request against the console.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodGet, path, nil)
}

// POST performs a POST request with a JSON body against the console.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPost, path, body)
}

// PUT performs a PUT request with a JSON body against the console.
func (h *TestHarness) PUT(path string, body any) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPut, path, body)
}

// DELETE performs a DELETE request against the console.
func (h *TestHarness) DELETE(path string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodDelete, path, nil)
}

func (h *TestHarness) do(method, path string, body any) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// ParseJSON decodes the response body into v and closes the body.
func ParseJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody returns the response body as a string and closes it.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return string(body)
}

// AssertStatus fails the test if the response status does not match.
func AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body := ReadBody(t, resp)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}

// AssertErrorCode decodes the console's error envelope and checks its code.
func AssertErrorCode(t *testing.T, resp *http.Response, wantStatus int, wantCode string) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d", resp.StatusCode, wantStatus)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	ParseJSON(t, resp, &envelope)
	if envelope.Error.Code != wantCode {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, wantCode)
	}
}

// OpenSession opens a create-mode editing session and returns its id.
func (h *TestHarness) OpenSession() string {
	h.t.Helper()
	resp := h.POST("/ui/editor/sessions", map[string]any{})
	if resp.StatusCode != http.StatusCreated {
		body := ReadBody(h.t, resp)
		h.t.Fatalf("open session: status = %d (body: %s)", resp.StatusCode, body)
	}
	var view struct {
		SessionID string `json:"session_id"`
	}
	ParseJSON(h.t, resp, &view)
	if view.SessionID == "" {
		h.t.Fatal("open session: empty session_id")
	}
	return view.SessionID
}

// SessionPath builds a path under the session's resource.
func SessionPath(sessionID, suffix string) string {
	return fmt.Sprintf("/ui/editor/sessions/%s%s", sessionID, suffix)
}

// RuleFixture returns a backend rule row in the string actions convention.
func RuleFixture(id int, name string) map[string]any {
	actions, _ := json.Marshal([]map[string]any{
		{
			"platform":       "slack",
			"action":         "send_message",
			"integration_id": "5",
			"channel":        "#support",
		},
	})
	return map[string]any{
		"id":               id,
		"user_id":          1,
		"name":             name,
		"description":      "",
		"trigger_platform": "zendesk",
		"trigger_event":    "ticket_tag_added",
		"trigger_data":     "{\n  \"tag\": \"urgent\"\n}",
		"actions":          string(actions),
		"created_at":       "2026-08-01T10:00:00Z",
	}
}

// IntegrationFixture returns a backend integration row.
func IntegrationFixture(id int, platform string) map[string]any {
	return map[string]any{
		"id":               id,
		"user_id":          1,
		"name":             platform + " workspace",
		"integration_type": platform,
		"config":           map[string]any{},
		"is_active":        true,
		"created_at":       "2026-08-01T10:00:00Z",
	}
}
