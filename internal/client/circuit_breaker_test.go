package client

import (
	"testing"
	"time"
)

func TestCircuitBreaker_opensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute, 0, 0)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v after 2 failures, want closed", cb.State())
	}
	// A success resets the failure run.
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v, success should have reset the count", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %v after 3 consecutive failures, want open", cb.State())
	}
	if err := cb.Allow(); err == nil {
		t.Error("Allow() should reject while open")
	}
}

func TestCircuitBreaker_halfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond, 0, 0)

	cb.RecordFailure()
	if err := cb.Allow(); err == nil {
		t.Fatal("Allow() should reject immediately after opening")
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown error = %v, want probe admitted", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
}

func TestCircuitBreaker_closesAfterProbeSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, time.Nanosecond, 0, 0)
	cb.RecordFailure()
	time.Sleep(time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatal(err)
	}

	cb.RecordSuccess()
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %v after 1 probe success, want half-open", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v after 2 probe successes, want closed", cb.State())
	}
}

func TestCircuitBreaker_halfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, time.Nanosecond, 0, 0)
	cb.RecordFailure()
	time.Sleep(time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatal(err)
	}

	cb.RecordFailure()
	if err := cb.Allow(); err == nil {
		t.Error("a half-open failure should reopen the circuit immediately")
	}
}

func TestCircuitBreaker_errorRateTrips(t *testing.T) {
	// High consecutive threshold so only the rate path can trip.
	cb := NewCircuitBreaker(100, 2, time.Minute, 0.5, time.Minute)

	// Alternate success/failure so the consecutive count never builds,
	// while the window's error rate sits at 50%.
	for i := 0; i < 5; i++ {
		cb.RecordSuccess()
		cb.RecordFailure()
	}
	if cb.State() != BreakerOpen {
		rate, total := cb.ErrorRate()
		t.Fatalf("state = %v with rate %.2f over %d requests, want open", cb.State(), rate, total)
	}
}

func TestCircuitBreaker_errorRateNeedsSamples(t *testing.T) {
	cb := NewCircuitBreaker(100, 2, time.Minute, 0.5, time.Minute)

	// 100% failure rate but below the sample floor: stays closed.
	for i := 0; i < 9; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v with %d samples, want closed", cb.State(), 9)
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatal("tenth failing sample should trip on error rate")
	}
}

func TestCircuitBreaker_errorRateDisabledByZero(t *testing.T) {
	cb := NewCircuitBreaker(100, 2, time.Minute, 0, 0)

	for i := 0; i < 20; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v, zero threshold must disable rate tripping", cb.State())
	}
	if rate, total := cb.ErrorRate(); rate != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%.2f, %d), want untracked", rate, total)
	}
}

func TestCircuitBreaker_windowExpires(t *testing.T) {
	cb := NewCircuitBreaker(100, 2, time.Minute, 0.5, 10*time.Millisecond)

	for i := 0; i < 9; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	// The old window's failures no longer count toward the rate.
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v, expired window should reset the rate", cb.State())
	}
	if _, total := cb.ErrorRate(); total != 1 {
		t.Errorf("window total = %d after expiry, want 1", total)
	}
}

func TestCircuitBreaker_defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0, 0, 0, 0)
	if cb.failureThreshold != 5 || cb.successThreshold != 2 || cb.cooldown != 30*time.Second {
		t.Errorf("defaults = (%d, %d, %v)", cb.failureThreshold, cb.successThreshold, cb.cooldown)
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
