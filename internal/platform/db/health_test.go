package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

type healthBody struct {
	Status string     `json:"status"`
	Error  string     `json:"error"`
	Pool   *PoolStats `json:"pool"`
}

func runHealth(t *testing.T, pingErr error) (*httptest.ResponseRecorder, healthBody) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	h := healthHandler(
		func(context.Context) error { return pingErr },
		func() *PoolStats { return &PoolStats{TotalConns: 3, IdleConns: 2, AcquiredConns: 1, MaxConns: 10, Healthy: true} },
	)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := runHealth(t, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body.Status != "healthy" || body.Pool == nil || body.Pool.TotalConns != 3 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHealthHandler_PingFails(t *testing.T) {
	rec, body := runHealth(t, errors.New("connection refused"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body.Status != "unhealthy" || body.Error != "connection refused" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Pool.Healthy {
		t.Error("expected pool to be reported unhealthy")
	}
}
