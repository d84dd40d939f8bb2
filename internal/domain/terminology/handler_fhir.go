package terminology

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

func (h *Handler) registerFHIRRoutes(g *echo.Group) {
	g.GET("/CodeSystem/namaste", h.GetNamasteCodeSystem)
	g.GET("/ConceptMap", h.SearchConceptMaps)
	g.GET("/ConceptMap/$translate", h.FHIRTranslate)
	g.POST("/ConceptMap/$translate", h.FHIRTranslate)
	g.GET("/ConceptMap/:id", h.GetConceptMap)
	g.POST("/Condition/$dual-code", h.DualCodeCondition)
	g.POST("/Bundle", h.CreateBundle)
}

// DescribeCapabilities registers the FHIR resources and operations served
// by this handler.
func (h *Handler) DescribeCapabilities(b *fhir.CapabilityBuilder) {
	b.AddResource("CodeSystem", []string{"read"})
	b.AddResource("ConceptMap", []string{"read", "search-type"},
		fhir.SearchParam{Name: "_count", Type: "number"},
		fhir.SearchParam{Name: "_offset", Type: "number"})
	b.AddOperation("ConceptMap", fhir.Operation{
		Name:       "translate",
		Definition: "http://hl7.org/fhir/OperationDefinition/ConceptMap-translate",
	})
	b.AddOperation("Condition", fhir.Operation{
		Name:          "dual-code",
		Definition:    "Condition/$dual-code",
		Documentation: "Build a Condition coded in NAMASTE with ICD-11 and TM2 equivalents",
	})
	b.AddResource("Bundle", []string{"create"})
}

// fhirStatus maps domain errors onto FHIR response status codes.
func fhirStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// GetNamasteCodeSystem handles GET /fhir/CodeSystem/namaste
func (h *Handler) GetNamasteCodeSystem(c echo.Context) error {
	cs, err := h.svc.NamasteCodeSystem(c.Request().Context(), c.QueryParam("version"))
	if err != nil {
		return c.JSON(fhirStatus(err), fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, cs)
}

// GetConceptMap handles GET /fhir/ConceptMap/{source}-to-{target}
func (h *Handler) GetConceptMap(c echo.Context) error {
	id := c.Param("id")
	parts := strings.SplitN(id, "-to-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ConceptMap", id))
	}
	cm, err := h.svc.ConceptMap(c.Request().Context(), parts[0], parts[1], c.QueryParam("version"))
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ConceptMap", id))
		}
		return c.JSON(fhirStatus(err), fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, cm)
}

// SearchConceptMaps handles GET /fhir/ConceptMap and returns a searchset
// Bundle of every system pair's ConceptMap.
func (h *Handler) SearchConceptMaps(c echo.Context) error {
	maps, err := h.svc.ConceptMaps(c.Request().Context(), c.QueryParam("version"))
	if err != nil {
		return c.JSON(fhirStatus(err), fhir.ErrorOutcome(err.Error()))
	}
	count := getLimit(c, 20)
	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset < 0 {
		offset = 0
	}

	page := make([]interface{}, 0, count)
	for i := offset; i < len(maps) && i < offset+count; i++ {
		page = append(page, maps[i])
	}
	query := ""
	if v := c.QueryParam("version"); v != "" {
		query = "version=" + url.QueryEscape(v)
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundleWithLinks(page, fhir.SearchBundleParams{
		BaseURL:  c.Request().URL.Path,
		QueryStr: query,
		Count:    count,
		Offset:   offset,
		Total:    len(maps),
	}))
}

// FHIRTranslate handles GET|POST /fhir/ConceptMap/$translate. GET reads
// system, code and targetsystem from the query; POST reads them from a
// Parameters resource.
func (h *Handler) FHIRTranslate(c echo.Context) error {
	system := c.QueryParam("system")
	code := c.QueryParam("code")
	target := c.QueryParam("targetsystem")

	if c.Request().Method == http.MethodPost {
		var body fhir.Parameters
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil && err != io.EOF {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid Parameters body: "+err.Error()))
		}
		for _, p := range body.Parameter {
			v := p.ValueURI
			if v == "" {
				v = p.ValueCode
			}
			if v == "" {
				v = p.ValueString
			}
			switch p.Name {
			case "system":
				system = v
			case "code":
				code = v
			case "targetsystem", "targetSystem":
				target = v
			}
		}
	}

	switch {
	case system == "":
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("system"))
	case code == "":
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("code"))
	case target == "":
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("targetsystem"))
	}

	matches, err := h.svc.TranslateMatches(c.Request().Context(), system, code, target)
	if err != nil {
		return c.JSON(fhirStatus(err), fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, fhir.BuildTranslateParameters(matches))
}

// DualCodeCondition handles POST /fhir/Condition/$dual-code
func (h *Handler) DualCodeCondition(c echo.Context) error {
	var req DualCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid request body"))
	}
	if req.PatientRef == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("patientReference"))
	}
	if req.PrimaryCode == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("primaryCode"))
	}
	cond, err := h.svc.DualCodedCondition(c.Request().Context(), &req)
	if err != nil {
		return c.JSON(fhirStatus(err), fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusCreated, cond)
}

// CreateBundle handles POST /fhir/Bundle. The body is either a JSON array of
// resources or {"type": "...", "resources": [...]}.
func (h *Handler) CreateBundle(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("failed to read body"))
	}

	var req struct {
		Type      string            `json:"type"`
		Resources []json.RawMessage `json:"resources"`
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(raw, &req.Resources)
	} else {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid bundle request: "+err.Error()))
	}

	resources := make([]interface{}, 0, len(req.Resources))
	for i, r := range req.Resources {
		var m map[string]interface{}
		if err := json.Unmarshal(r, &m); err != nil {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("resource "+strconv.Itoa(i)+" is not a JSON object"))
		}
		resources = append(resources, m)
	}
	return c.JSON(http.StatusCreated, h.svc.Generator().GenerateBundle(resources, req.Type))
}
