package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliniq/cliniq/internal/platform/auth"
)

func limitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

// hit sends one request through the limited handler as the given caller.
// Empty userID means an unauthenticated caller keyed by remote address.
func hit(t *testing.T, e *echo.Echo, h echo.HandlerFunc, userID string, roles []string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/mine", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	if roles != nil {
		c.Set("user_roles", roles)
	}
	return rec, h(c)
}

func TestRateLimit_BurstThenRejected(t *testing.T) {
	e := echo.New()
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 3})

	for i := 0; i < 3; i++ {
		rec, err := hit(t, e, h, "patient-1", []string{auth.RolePatient})
		if err != nil {
			t.Fatalf("request %d within burst: %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "0.001" {
			t.Errorf("request %d: X-RateLimit-Limit = %q", i+1, got)
		}
	}

	rec, err := hit(t, e, h, "patient-1", []string{auth.RolePatient})
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %v", err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0 on rejection")
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_StaffBurstIsWider(t *testing.T) {
	e := echo.New()
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1, StaffBurstFactor: 3})

	// The patient budget runs out after one request.
	if _, err := hit(t, e, h, "patient-1", []string{auth.RolePatient}); err != nil {
		t.Fatalf("patient first request: %v", err)
	}
	if _, err := hit(t, e, h, "patient-1", []string{auth.RolePatient}); err == nil {
		t.Fatal("expected patient second request to be rejected")
	}

	// A doctor polling the board gets three times the burst.
	for i := 0; i < 3; i++ {
		if _, err := hit(t, e, h, "doc-1", []string{auth.RoleDoctor}); err != nil {
			t.Fatalf("doctor request %d: %v", i+1, err)
		}
	}
	if _, err := hit(t, e, h, "doc-1", []string{auth.RoleDoctor}); err == nil {
		t.Fatal("expected doctor fourth request to be rejected")
	}
}

func TestRateLimit_AdminCountsAsStaff(t *testing.T) {
	e := echo.New()
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1, StaffBurstFactor: 2})

	for i := 0; i < 2; i++ {
		if _, err := hit(t, e, h, "admin-1", []string{auth.RoleAdmin}); err != nil {
			t.Fatalf("admin request %d: %v", i+1, err)
		}
	}
}

func TestRateLimit_CallersHaveSeparateBudgets(t *testing.T) {
	e := echo.New()
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	if _, err := hit(t, e, h, "patient-a", []string{auth.RolePatient}); err != nil {
		t.Fatalf("patient-a: %v", err)
	}
	if _, err := hit(t, e, h, "patient-a", []string{auth.RolePatient}); err == nil {
		t.Fatal("expected patient-a to exhaust their budget")
	}
	if _, err := hit(t, e, h, "patient-b", []string{auth.RolePatient}); err != nil {
		t.Fatalf("patient-b should have a fresh budget: %v", err)
	}
}

func TestRateLimit_AnonymousKeyedByAddress(t *testing.T) {
	e := echo.New()
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	// httptest requests share a remote address, so the second unauthenticated
	// call lands on the same bucket.
	if _, err := hit(t, e, h, "", nil); err != nil {
		t.Fatalf("first anonymous request: %v", err)
	}
	if _, err := hit(t, e, h, "", nil); err == nil {
		t.Fatal("expected second anonymous request from the same address to be rejected")
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.StaffBurstFactor < 2 {
		t.Errorf("expected staff to get a wider burst by default, got factor %d", cfg.StaffBurstFactor)
	}
}

func TestBudget_ZeroRefillStillReportsWait(t *testing.T) {
	b := &budget{level: 1, capacity: 1, refilled: time.Now()}
	if ok, _ := b.take(time.Now()); !ok {
		t.Fatal("expected the single token to be granted")
	}
	ok, wait := b.take(time.Now())
	if ok {
		t.Fatal("expected an empty zero-rate budget to reject")
	}
	if wait != time.Second {
		t.Errorf("expected a one second wait hint, got %s", wait)
	}
}

func TestBudget_RefillsOverTime(t *testing.T) {
	start := time.Now()
	b := &budget{level: 0, capacity: 2, perSec: 1, refilled: start}

	if ok, _ := b.take(start); ok {
		t.Fatal("expected empty budget to reject")
	}
	if ok, _ := b.take(start.Add(1500 * time.Millisecond)); !ok {
		t.Fatal("expected a token after 1.5s at 1/s")
	}
	// Refill never exceeds capacity.
	if ok, _ := b.take(start.Add(time.Hour)); !ok {
		t.Fatal("expected a token after a long idle stretch")
	}
	if ok, _ := b.take(start.Add(time.Hour)); !ok {
		t.Fatal("expected the burst capacity to allow a second token")
	}
	if ok, _ := b.take(start.Add(time.Hour)); ok {
		t.Fatal("expected the capped budget to run out at capacity")
	}
}
