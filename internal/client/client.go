package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opsforge/automator/internal/config"
	"github.com/opsforge/automator/model"
)

// Recorder receives client-side metrics. It is satisfied by
// observability.Metrics; a nil Recorder disables recording.
type Recorder interface {
	RecordBackendRequest(operation string, status int, duration time.Duration)
	RecordBackendRetry(operation string)
	SetBreakerState(state string)
}

// Client is the HTTP client for the automation backend. It owns the
// connection pool, circuit breaker, and retry policy for all rule,
// integration, and webhook traffic.
type Client struct {
	cfg     config.BackendConfig
	http    *http.Client
	breaker *CircuitBreaker
	metrics Recorder
}

// New creates a backend client from configuration.
func New(cfg config.BackendConfig, metrics Recorder) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	cbCfg := cfg.CircuitBreaker
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: NewCircuitBreaker(
			cbCfg.FailureThreshold,
			cbCfg.SuccessThreshold,
			cbCfg.Timeout,
			cbCfg.ErrorRateThreshold,
			cbCfg.ErrorRateWindow,
		),
		metrics: metrics,
	}
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// HealthCheck reports the backend as unhealthy while the circuit
// breaker is open. It deliberately avoids probing the backend so that
// readiness polls do not add load during an outage.
func (c *Client) HealthCheck(_ context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return fmt.Errorf("circuit breaker open for %s", c.cfg.BaseURL)
	}
	return nil
}

// --- rules ---

// ListRules fetches all rules in wire form. Decoding into the editing
// model is the serializer's job, not the client's.
func (c *Client) ListRules(ctx context.Context) ([]model.WireRule, error) {
	var out []model.WireRule
	if err := c.doJSON(ctx, "list_rules", http.MethodGet, "/rules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRule fetches a single rule in wire form.
func (c *Client) GetRule(ctx context.Context, id string) (model.WireRule, error) {
	var out model.WireRule
	if err := c.doJSON(ctx, "get_rule", http.MethodGet, "/rules/"+url.PathEscape(id), nil, &out); err != nil {
		return model.WireRule{}, err
	}
	return out, nil
}

// CreateRule persists a new rule and returns the backend's copy.
func (c *Client) CreateRule(ctx context.Context, w model.WireRule) (model.WireRule, error) {
	var out model.WireRule
	if err := c.doJSON(ctx, "create_rule", http.MethodPost, "/rules", w, &out); err != nil {
		return model.WireRule{}, err
	}
	return out, nil
}

// UpdateRule replaces an existing rule and returns the backend's copy.
func (c *Client) UpdateRule(ctx context.Context, id string, w model.WireRule) (model.WireRule, error) {
	var out model.WireRule
	if err := c.doJSON(ctx, "update_rule", http.MethodPut, "/rules/"+url.PathEscape(id), w, &out); err != nil {
		return model.WireRule{}, err
	}
	return out, nil
}

// DeleteRule removes a rule.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete_rule", http.MethodDelete, "/rules/"+url.PathEscape(id), nil)
}

// --- integrations ---

// ListIntegrations fetches all saved integrations.
func (c *Client) ListIntegrations(ctx context.Context) ([]model.Integration, error) {
	var wires []model.WireIntegration
	if err := c.doJSON(ctx, "list_integrations", http.MethodGet, "/integrations", nil, &wires); err != nil {
		return nil, err
	}
	out := make([]model.Integration, 0, len(wires))
	for _, w := range wires {
		out = append(out, decodeIntegration(w))
	}
	return out, nil
}

// GetIntegration fetches a single integration.
func (c *Client) GetIntegration(ctx context.Context, id string) (model.Integration, error) {
	var w model.WireIntegration
	if err := c.doJSON(ctx, "get_integration", http.MethodGet, "/integrations/"+url.PathEscape(id), nil, &w); err != nil {
		return model.Integration{}, err
	}
	return decodeIntegration(w), nil
}

// CreateIntegration saves a new integration.
func (c *Client) CreateIntegration(ctx context.Context, in model.Integration) (model.Integration, error) {
	var w model.WireIntegration
	if err := c.doJSON(ctx, "create_integration", http.MethodPost, "/integrations", encodeIntegration(in), &w); err != nil {
		return model.Integration{}, err
	}
	return decodeIntegration(w), nil
}

// UpdateIntegration replaces an existing integration.
func (c *Client) UpdateIntegration(ctx context.Context, id string, in model.Integration) (model.Integration, error) {
	var w model.WireIntegration
	if err := c.doJSON(ctx, "update_integration", http.MethodPut, "/integrations/"+url.PathEscape(id), encodeIntegration(in), &w); err != nil {
		return model.Integration{}, err
	}
	return decodeIntegration(w), nil
}

// DeleteIntegration removes an integration.
func (c *Client) DeleteIntegration(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete_integration", http.MethodDelete, "/integrations/"+url.PathEscape(id), nil)
}

// TestConnection asks the backend to check a credential set against the
// external service without saving it.
func (c *Client) TestConnection(ctx context.Context, req model.TestConnectionRequest) (model.TestConnectionResult, error) {
	var out model.TestConnectionResult
	if err := c.doJSON(ctx, "test_connection", http.MethodPost, "/integrations/test", req, &out); err != nil {
		return model.TestConnectionResult{}, err
	}
	return out, nil
}

// --- webhooks ---

// TriggerWebhook posts a raw payload to the backend's webhook receiver
// for the given platform. The body is forwarded verbatim, and the
// backend's response body and status are returned for display.
func (c *Client) TriggerWebhook(ctx context.Context, platform string, rawBody []byte) (int, []byte, error) {
	path := "/trigger/" + url.PathEscape(platform)
	status, body, err := c.execute(ctx, "trigger_webhook", http.MethodPost, path, rawBody)
	if err != nil {
		return 0, nil, err
	}
	return status, body, nil
}

// --- request plumbing ---

// doJSON executes a request with an optional JSON body, maps non-2xx
// responses to error envelopes, and decodes the response into out when
// out is non-nil.
func (c *Client) doJSON(ctx context.Context, operation, method, path string, body any, out ...any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal body: %w", err)
		}
	}

	status, respBody, err := c.execute(ctx, operation, method, path, bodyBytes)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return decodeBackendError(status, respBody)
	}
	if len(out) > 0 && out[0] != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out[0]); err != nil {
			return fmt.Errorf("client: decode %s response: %w", operation, err)
		}
	}
	return nil
}

// execute runs the request with retry, backoff, and circuit breaker
// protection, returning the final status and body.
func (c *Client) execute(ctx context.Context, operation, method, path string, bodyBytes []byte) (int, []byte, error) {
	retryCfg := c.cfg.Retry
	maxAttempts := retryCfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	canRetry := isIdempotentMethod(method) || !retryCfg.IdempotentOnly

	start := time.Now()
	var lastErr error
	lastStatus := 0
	var lastBody []byte

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.record(func(m Recorder) { m.RecordBackendRetry(operation) })
			delay := calculateBackoff(retryCfg, attempt)
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		status, body, err := c.executeOnce(ctx, method, path, bodyBytes)
		if err != nil {
			lastErr = err
			if !canRetry || !isRetryableError(err) {
				c.finish(operation, 0, start)
				return 0, nil, err
			}
			slog.Debug("client: retrying after error",
				"operation", operation,
				"attempt", attempt+1,
				"max", maxAttempts,
				"error", err,
			)
			continue
		}

		if isRetryableStatus(status) && canRetry && attempt < maxAttempts-1 {
			lastStatus = status
			lastBody = body
			slog.Debug("client: retrying after status",
				"operation", operation,
				"attempt", attempt+1,
				"max", maxAttempts,
				"status", status,
			)
			continue
		}

		c.finish(operation, status, start)
		return status, body, nil
	}

	c.finish(operation, lastStatus, start)
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return lastStatus, lastBody, nil
}

// executeOnce performs a single HTTP request with circuit breaker protection.
func (c *Client) executeOnce(ctx context.Context, method, path string, bodyBytes []byte) (int, []byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return 0, nil, model.NewBackendUnavailableError()
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.record(func(m Recorder) { m.SetBreakerState(c.breaker.State().String()) })
		if isConnectionError(err) {
			return 0, nil, model.NewBackendUnavailableError()
		}
		if ctx.Err() != nil {
			return 0, nil, model.NewBackendTimeoutError()
		}
		return 0, nil, fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		c.breaker.RecordFailure()
		return 0, nil, fmt.Errorf("client: read response: %w", err)
	}

	// Record circuit breaker outcome. 4xx responses are the caller's
	// problem, not infrastructure failures.
	if isServerError(resp.StatusCode) {
		c.breaker.RecordFailure()
	} else if !isClientError(resp.StatusCode) {
		c.breaker.RecordSuccess()
	}
	c.record(func(m Recorder) { m.SetBreakerState(c.breaker.State().String()) })

	return resp.StatusCode, respBody, nil
}

func (c *Client) finish(operation string, status int, start time.Time) {
	c.record(func(m Recorder) { m.RecordBackendRequest(operation, status, time.Since(start)) })
}

func (c *Client) record(fn func(Recorder)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

// decodeBackendError maps a non-2xx backend response to an error
// envelope, extracting the {"detail": "..."} message the backend uses.
func decodeBackendError(status int, body []byte) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	msg := ""
	if len(body) > 0 {
		if err := json.Unmarshal(body, &detail); err == nil {
			msg = detail.Detail
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
			if len(msg) > 200 {
				msg = msg[:200]
			}
		}
	}
	return model.NewHTTPError(status, msg)
}

// --- integration wire mapping ---

func decodeIntegration(w model.WireIntegration) model.Integration {
	cfg := make(map[string]string, len(w.Config))
	for k, v := range w.Config {
		cfg[k] = v
	}
	return model.Integration{
		ID:              w.ID.String(),
		Name:            w.Name,
		IntegrationType: w.IntegrationType,
		Config:          cfg,
		CreatedAt:       parseBackendTime(w.CreatedAt),
		UpdatedAt:       parseBackendTime(w.UpdatedAt),
	}
}

func encodeIntegration(in model.Integration) map[string]any {
	return map[string]any{
		"name":             in.Name,
		"integration_type": in.IntegrationType,
		"config":           in.Config,
	}
}

// parseBackendTime tolerates the timestamp layouts the backend has been
// seen to emit. Zero time on failure.
func parseBackendTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- classification helpers ---

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Envelope errors (breaker open, unavailable, timeout) already
	// classify the failure; retrying would just delay the answer.
	var envelope *model.ErrorEnvelope
	if errors.As(err, &envelope) {
		return false
	}
	return true
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return false
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
			break
		}
	}
	return delay
}
