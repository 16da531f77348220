package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ui/health", nil)
	rec := httptest.NewRecorder()

	HandleHealth()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version == "" {
		t.Error("version should not be empty")
	}
}

func TestHandleReady_allChecksPass(t *testing.T) {
	checks := ReadinessChecks{
		CatalogLoaded: func() bool { return true },
		Backend:       &fakeChecker{},
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/ready", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if resp.Checks["catalog"].Status != "ok" {
		t.Errorf("catalog check = %+v, want ok", resp.Checks["catalog"])
	}
	if resp.Checks["backend"].Status != "ok" {
		t.Errorf("backend check = %+v, want ok", resp.Checks["backend"])
	}
}

func TestHandleReady_catalogMissing(t *testing.T) {
	checks := ReadinessChecks{
		CatalogLoaded: func() bool { return false },
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/ready", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
}

func TestHandleReady_backendDegraded(t *testing.T) {
	checks := ReadinessChecks{
		CatalogLoaded: func() bool { return true },
		Backend:       &fakeChecker{err: errors.New("circuit breaker open")},
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/ready", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["backend"].Error == "" {
		t.Error("backend check should carry the error text")
	}
}

func TestHandleReady_noBackendCheck(t *testing.T) {
	checks := ReadinessChecks{
		CatalogLoaded: func() bool { return true },
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/ready", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp.Checks["backend"]; ok {
		t.Error("backend check should be absent when no checker is configured")
	}
}
