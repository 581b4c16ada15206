package scoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/ehr/proscore/internal/platform/fhir"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/summaries", h.SummarizeAll)
	api.POST("/summaries/:questionnaire", h.SummarizeQuestionnaire)
	api.POST("/derivations", h.Derive)
	api.GET("/instruments", h.ListInstruments)
	api.GET("/instruments/:key", h.GetInstrument)
}

func readCollection(c echo.Context) (*fhir.Collection, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	return fhir.ParseCollection(body)
}

// badRequest answers 400 for unreadable input. HTTP errors raised while
// reading the body, such as the body limit's 413, are passed through to the
// error handler unchanged.
func badRequest(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
}

// loaderErrorStatus maps a definition loader failure onto a gateway status.
func loaderErrorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (h *Handler) SummarizeAll(c echo.Context) error {
	col, err := readCollection(c)
	if err != nil {
		return badRequest(c, err)
	}
	out, err := h.engine.SummarizeAll(c.Request().Context(), col)
	if err != nil {
		status := loaderErrorStatus(err)
		return c.JSON(status, fhir.OutcomeForStatus(status, err.Error()))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) SummarizeQuestionnaire(c echo.Context) error {
	ref := c.QueryParam("ref")
	if ref == "" {
		ref, _ = url.PathUnescape(c.Param("questionnaire"))
	}
	if strings.TrimSpace(ref) == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("questionnaire"))
	}
	col, err := readCollection(c)
	if err != nil {
		return badRequest(c, err)
	}
	s, err := h.engine.SummarizeQuestionnaire(c.Request().Context(), col, ref)
	if err != nil {
		status := loaderErrorStatus(err)
		return c.JSON(status, fhir.OutcomeForStatus(status, err.Error()))
	}
	if s == nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Questionnaire", ref))
	}
	if c.QueryParam("format") == "print" {
		table := FormatPrintResponseData(s.ResponseData)
		if table == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, table)
	}
	return c.JSON(http.StatusOK, s)
}

// DeriveRequest is the body of POST /derivations.
type DeriveRequest struct {
	LinkID                string          `json:"linkId"`
	TargetQuestionnaireID string          `json:"targetQuestionnaireId"`
	HostIDs               []string        `json:"hostIds,omitempty"`
	MatchMode             MatchMode       `json:"matchMode,omitempty"`
	Bundle                json.RawMessage `json:"bundle"`
}

func (h *Handler) Derive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, err)
	}
	var req DeriveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid request body: "+err.Error()))
	}
	if req.LinkID == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("linkId"))
	}
	if req.TargetQuestionnaireID == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("targetQuestionnaireId"))
	}
	if req.MatchMode != "" && req.MatchMode != MatchStrict && req.MatchMode != MatchFuzzy {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("matchMode", "must be strict or fuzzy"))
	}
	col, err := fhir.ParseCollection(req.Bundle)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("bundle", err.Error()))
	}

	derived := h.engine.DeriveFromBundle(col, req.HostIDs, DeriveOptions{
		LinkID:                req.LinkID,
		TargetQuestionnaireID: req.TargetQuestionnaireID,
		MatchMode:             req.MatchMode,
	})
	resources := make([]interface{}, len(derived))
	for i, qr := range derived {
		resources[i] = qr
	}
	return c.JSON(http.StatusOK, fhir.NewCollectionBundle(resources))
}

func (h *Handler) ListInstruments(c echo.Context) error {
	reg := h.engine.Registry()
	if reg == nil {
		return c.JSON(http.StatusOK, []*Config{})
	}
	return c.JSON(http.StatusOK, reg.Entries())
}

func (h *Handler) GetInstrument(c echo.Context) error {
	key := c.Param("key")
	if reg := h.engine.Registry(); reg != nil {
		if cfg, ok := reg.Get(key); ok {
			return c.JSON(http.StatusOK, cfg)
		}
	}
	return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Instrument", key))
}
