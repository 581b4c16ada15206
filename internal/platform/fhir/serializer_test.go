package fhir

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestJSONSerializer_Serialize(t *testing.T) {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := c.JSON(http.StatusOK, NotFoundOutcome("Questionnaire", "x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"resourceType":"OperationOutcome"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestJSONSerializer_Indent(t *testing.T) {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?pretty", nil), rec)

	if err := c.JSONPretty(http.StatusOK, map[string]int{"a": 1}, "  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "\n  \"a\": 1") {
		t.Errorf("expected indented output, got %q", rec.Body.String())
	}
}

func TestJSONSerializer_Deserialize(t *testing.T) {
	e := echo.New()
	s := JSONSerializer{}

	var out struct {
		LinkID string `json:"linkId"`
	}
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"linkId":"q1"}`)), httptest.NewRecorder())
	if err := s.Deserialize(c, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LinkID != "q1" {
		t.Errorf("expected q1, got %s", out.LinkID)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"linkId":7}`)), httptest.NewRecorder())
	err := s.Deserialize(c, &out)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for type mismatch, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"linkId":`)), httptest.NewRecorder())
	if err := s.Deserialize(c, &out); err == nil {
		t.Error("expected error for truncated body")
	}
}
