package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func doRequest(e *echo.Echo, h echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		panic(err)
	}
	return rec
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		rec := doRequest(e, h, "10.0.0.1:1234")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		if rec := doRequest(e, h, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := doRequest(e, h, "10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	if rec := doRequest(e, h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("client a first request: expected 200, got %d", rec.Code)
	}
	if rec := doRequest(e, h, "10.0.0.1:2"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("client a second request: expected 429, got %d", rec.Code)
	}
	if rec := doRequest(e, h, "10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Fatalf("client b first request: expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_ZeroBurstRejects(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 0})(okHandler)

	if rec := doRequest(e, h, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 with zero burst, got %d", rec.Code)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 {
		t.Errorf("expected RequestsPerSecond 50, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 100 {
		t.Errorf("expected BurstSize 100, got %d", cfg.BurstSize)
	}
}

func TestLimiterStore_ReusesAndEvicts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5, IdleTTL: time.Minute})
	store.now = func() time.Time { return now }

	a := store.get("a")
	if store.get("a") != a {
		t.Error("expected same limiter for same key")
	}
	if store.get("b") == a {
		t.Error("expected different limiter for different key")
	}

	now = now.Add(30 * time.Second)
	store.get("b")
	now = now.Add(45 * time.Second)
	store.get("c")

	if store.len() != 2 {
		t.Errorf("expected idle client a evicted leaving 2, got %d", store.len())
	}
}
