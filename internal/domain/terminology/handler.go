package terminology

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medisutra/bridge/pkg/pagination"
)

// Handler provides REST endpoints for the terminology bridge.
type Handler struct {
	svc *Service
}

// NewHandler creates a new terminology handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers terminology routes on the API and FHIR groups.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	api.GET("/search", h.Search)
	api.GET("/activity", h.RecentActivity)
	api.GET("/stats", h.Stats)

	api.GET("/codes/:kind", h.ListCodes)
	api.GET("/codes/:kind/:code", h.GetCode)
	api.GET("/namaste/system/:system", h.CodesBySystem)

	api.GET("/icd/roots", h.HierarchyRoots)
	api.GET("/icd/chapter/:chapter", h.ICDByChapter)
	api.GET("/icd/hierarchy/check", h.CheckHierarchy)
	api.GET("/icd/:code/children", h.ICDChildren)

	api.GET("/mappings/:system/:code", h.ResolveMappings)
	api.GET("/mappings/:system/:code/reverse", h.ReverseMappings)
	api.POST("/mappings", h.CreateMapping)
	api.GET("/translate", h.Translate)

	if fhirGroup != nil {
		h.registerFHIRRoutes(fhirGroup)
	}
}

func getLimit(c echo.Context, def int) int {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = def
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}

// httpError maps domain errors onto REST status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateCode):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Search --

type searchResponse struct {
	Query string `json:"query"`
	Total int    `json:"total"`
	*SearchResults
}

// Search handles GET /api/v1/search?q=...
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if strings.TrimSpace(query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}
	res, err := h.svc.SearchAll(c.Request().Context(), query, getLimit(c, DefaultSearchLimit))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, searchResponse{Query: query, Total: res.Total(), SearchResults: res})
}

// RecentActivity handles GET /api/v1/activity
func (h *Handler) RecentActivity(c echo.Context) error {
	items, err := h.svc.RecentActivity(c.Request().Context(), getLimit(c, 10))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// -- Lookups --

// ListCodes handles GET /api/v1/codes/:kind
func (h *Handler) ListCodes(c echo.Context) error {
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return httpError(err)
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListCodes(c.Request().Context(), kind, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset).WithLinks(c.Request().URL.Path))
}

// GetCode handles GET /api/v1/codes/:kind/:code
func (h *Handler) GetCode(c echo.Context) error {
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return httpError(err)
	}
	rec, err := h.svc.GetCode(c.Request().Context(), kind, c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// CodesBySystem handles GET /api/v1/namaste/system/:system
func (h *Handler) CodesBySystem(c echo.Context) error {
	codes, err := h.svc.CodesBySystem(c.Request().Context(), c.Param("system"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, codes)
}

func (h *Handler) HierarchyRoots(c echo.Context) error {
	roots, err := h.svc.HierarchyRoots(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, roots)
}

func (h *Handler) ICDByChapter(c echo.Context) error {
	codes, err := h.svc.ICDByChapter(c.Request().Context(), c.Param("chapter"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, codes)
}

func (h *Handler) ICDChildren(c echo.Context) error {
	codes, err := h.svc.ICDChildren(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, codes)
}

// CheckHierarchy handles GET /api/v1/icd/hierarchy/check
func (h *Handler) CheckHierarchy(c echo.Context) error {
	issues, err := h.svc.CheckHierarchy(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"consistent": len(issues) == 0,
		"issues":     issues,
	})
}

// -- Mappings --

// ResolveMappings handles GET /api/v1/mappings/:system/:code
func (h *Handler) ResolveMappings(c echo.Context) error {
	mappings, err := h.svc.ResolveMappings(c.Request().Context(), NormalizeSystem(c.Param("system")), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, mappings)
}

// ReverseMappings handles GET /api/v1/mappings/:system/:code/reverse
func (h *Handler) ReverseMappings(c echo.Context) error {
	mappings, err := h.svc.ReverseMappings(c.Request().Context(), NormalizeSystem(c.Param("system")), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, mappings)
}

// CreateMapping handles POST /api/v1/mappings. isActive defaults to true.
func (h *Handler) CreateMapping(c echo.Context) error {
	var req struct {
		SourceSystem string `json:"sourceSystem"`
		SourceCode   string `json:"sourceCode"`
		TargetSystem string `json:"targetSystem"`
		TargetCode   string `json:"targetCode"`
		MappingType  string `json:"mappingType"`
		Confidence   string `json:"confidence"`
		IsActive     *bool  `json:"isActive"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m := &CodeMapping{
		SourceSystem: NormalizeSystem(req.SourceSystem),
		SourceCode:   req.SourceCode,
		TargetSystem: NormalizeSystem(req.TargetSystem),
		TargetCode:   req.TargetCode,
		MappingType:  req.MappingType,
		Confidence:   req.Confidence,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if m.MappingType == "" {
		m.MappingType = MappingRelated
	}
	created, err := h.svc.PutMapping(c.Request().Context(), m)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Translate handles GET /api/v1/translate?sourceSystem=&sourceCode=&targetSystem=[&enrich=true]
func (h *Handler) Translate(c echo.Context) error {
	src := NormalizeSystem(c.QueryParam("sourceSystem"))
	code := c.QueryParam("sourceCode")
	tgt := NormalizeSystem(c.QueryParam("targetSystem"))
	ctx := c.Request().Context()

	if enrich, _ := strconv.ParseBool(c.QueryParam("enrich")); enrich {
		mappings, err := h.svc.TranslateEnriched(ctx, src, code, tgt)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, mappings)
	}
	mappings, err := h.svc.Translate(ctx, src, code, tgt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, mappings)
}
