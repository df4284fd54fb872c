package search

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/pkg/expression"
	"github.com/ehr/fhirsearch/pkg/pagination"
)

// CacheKeyHeader carries the cache key of the submitted tree on responses.
const CacheKeyHeader = "X-Expression-Cache-Key"

// Handler serves the expression search routes.
type Handler struct {
	svc      *Service
	registry *expression.ParameterRegistry
}

// NewHandler creates a Handler. Parameters named in request documents are
// resolved against registry.
func NewHandler(svc *Service, registry *expression.ParameterRegistry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/search/$explain", h.Explain)
	g.POST("/search/$format", h.Format)
	g.POST("/search/:resourceType/_expression", h.Search)
}

type explainRequest struct {
	ResourceType string               `json:"resourceType"`
	Expression   *expression.Document `json:"expression"`
}

type searchsetBundle struct {
	ResourceType string                `json:"resourceType"`
	Type         string                `json:"type"`
	Total        int                   `json:"total"`
	Link         []pagination.FHIRLink `json:"link"`
	Entry        []bundleEntry         `json:"entry,omitempty"`
}

type bundleEntry struct {
	FullURL string `json:"fullUrl"`
}

// Explain handles POST /search/$explain.
func (h *Handler) Explain(c echo.Context) error {
	var req explainRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return h.errorResponse(c, &malformedBodyError{err: err})
	}
	if req.ResourceType == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("resourceType"))
	}
	if req.Expression == nil {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("expression"))
	}
	e, err := expression.Decode(req.Expression, h.registry)
	if err != nil {
		return h.errorResponse(c, err)
	}

	exp, err := h.svc.Explain(c.Request().Context(), req.ResourceType, e)
	if err != nil {
		return h.errorResponse(c, err)
	}
	c.Response().Header().Set(CacheKeyHeader, exp.CacheKey)
	return c.JSON(http.StatusOK, exp)
}

// Format handles POST /search/$format. It returns the canonical and
// flattened forms without touching a resource table.
func (h *Handler) Format(c echo.Context) error {
	e, err := h.bindExpression(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	p, err := h.svc.Prepare(c.Request().Context(), e)
	if err != nil {
		return h.errorResponse(c, err)
	}
	c.Response().Header().Set(CacheKeyHeader, p.CacheKey)
	return c.JSON(http.StatusOK, p)
}

// Search handles POST /search/:resourceType/_expression.
func (h *Handler) Search(c echo.Context) error {
	e, err := h.bindExpression(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	resourceType := c.Param("resourceType")
	pg := pagination.FromContext(c, h.svc.Config().DefaultPageSize)

	res, err := h.svc.Search(c.Request().Context(), resourceType, e, pg.Limit, pg.Offset)
	if err != nil {
		return h.errorResponse(c, err)
	}

	bundle := &searchsetBundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        res.Total,
		Link:         pg.FHIRLinks(c.Request().URL.Path, res.Total),
	}
	for _, id := range res.IDs {
		bundle.Entry = append(bundle.Entry, bundleEntry{FullURL: resourceType + "/" + id})
	}
	c.Response().Header().Set(CacheKeyHeader, res.CacheKey)
	return c.JSON(http.StatusOK, bundle)
}

// bindExpression decodes the request body as an expression document.
func (h *Handler) bindExpression(c echo.Context) (expression.Expression, error) {
	var doc expression.Document
	if err := json.NewDecoder(c.Request().Body).Decode(&doc); err != nil {
		return nil, &malformedBodyError{err: err}
	}
	return expression.Decode(&doc, h.registry)
}

type malformedBodyError struct {
	err error
}

func (e *malformedBodyError) Error() string { return "malformed request body: " + e.err.Error() }

func (e *malformedBodyError) Unwrap() error { return e.err }

func (h *Handler) errorResponse(c echo.Context, err error) error {
	var malformed *malformedBodyError
	switch {
	case errors.As(err, &malformed):
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeStructure, err.Error()))
	case errors.Is(err, expression.ErrDepthExceeded):
		return c.JSON(http.StatusBadRequest, fhir.TooCostlyOutcome(err.Error()))
	case errors.Is(err, expression.ErrInvalidExpression):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	case errors.Is(err, expression.ErrTraversal):
		return c.JSON(http.StatusBadRequest, fhir.NotSupportedOutcome(err.Error()))
	case errors.Is(err, ErrSearchUnavailable):
		return c.JSON(http.StatusServiceUnavailable, fhir.UnavailableOutcome(err.Error()))
	case errors.Is(err, expression.ErrUnhandledVariant):
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome("search failed"))
	}
}
