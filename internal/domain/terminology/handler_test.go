package terminology

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))
	return h, e
}

func expectHTTPError(t *testing.T, err error, status int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if he.Code != status {
		t.Errorf("expected status %d, got %d", status, he.Code)
	}
}

// =========== Search Handler Tests ===========

func TestHandler_Search_Success(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=grahani", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Query        string         `json:"query"`
		Total        int            `json:"total"`
		ICDCodes     []*ICDCode     `json:"icdCodes"`
		NamasteCodes []*NamasteCode `json:"namasteCodes"`
		TM2Codes     []*TM2Code     `json:"tm2Codes"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Query != "grahani" || body.Total != 1 || len(body.NamasteCodes) != 1 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if body.ICDCodes == nil || body.TM2Codes == nil {
		t.Error("expected empty arrays rather than null")
	}
}

func TestHandler_Search_MissingQuery(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	expectHTTPError(t, h.Search(c), http.StatusBadRequest)
}

func TestHandler_RecentActivity(t *testing.T) {
	_, e := newTestHandler(t)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/search?q=migraine", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/activity", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []*SearchActivity
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].Query != "migraine" {
		t.Errorf("unexpected activity %s", rec.Body.String())
	}
}

// =========== Lookup Handler Tests ===========

func TestHandler_GetCode(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("kind", "code")
	c.SetParamValues("namaste", "AYU-DIG-001")

	if err := h.GetCode(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got NamasteCode
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Code != "AYU-DIG-001" || got.System != "AYU" || got.ICDMapping != "1A00-1A9Z" {
		t.Errorf("unexpected code %+v", got)
	}
}

func TestHandler_GetCode_Errors(t *testing.T) {
	h, e := newTestHandler(t)

	tests := []struct {
		kind, code string
		status     int
	}{
		{"icd", "NOPE", http.StatusNotFound},
		{"loinc", "1234-5", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.SetParamNames("kind", "code")
		c.SetParamValues(tt.kind, tt.code)
		expectHTTPError(t, h.GetCode(c), tt.status)
	}
}

func TestHandler_ListCodes_Paginated(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/codes/icd?limit=2&offset=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data    []*ICDCode `json:"data"`
		Total   int        `json:"total"`
		HasMore bool       `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Data) != 2 || body.Total != len(seedICD) || !body.HasMore {
		t.Errorf("unexpected page %s", rec.Body.String())
	}
}

func TestHandler_CodesBySystem(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/namaste/system/SID", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var codes []*NamasteCode
	json.Unmarshal(rec.Body.Bytes(), &codes)
	if len(codes) != 1 || codes[0].Code != "SID-DIG-001" {
		t.Errorf("unexpected codes %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/namaste/system/XYZ", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ICDRoutes(t *testing.T) {
	_, e := newTestHandler(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/icd/roots", 4},
		{"/api/v1/icd/chapter/01", 3},
		{"/api/v1/icd/1A00-1A9Z/children", 2},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var codes []*ICDCode
			json.Unmarshal(rec.Body.Bytes(), &codes)
			if len(codes) != tt.want {
				t.Errorf("expected %d codes, got %d", tt.want, len(codes))
			}
		})
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/icd/ZZZ/children", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown parent, got %d", rec.Code)
	}
}

func TestHandler_CheckHierarchy(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/icd/hierarchy/check", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"consistent":true`) {
		t.Errorf("expected consistent hierarchy, got %s", rec.Body.String())
	}
}

func TestHandler_Stats(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st Stats
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Codes[KindNamaste] != len(seedNamaste) {
		t.Errorf("unexpected stats %s", rec.Body.String())
	}
}

// =========== Mapping Handler Tests ===========

func TestHandler_ResolveMappings(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/mappings/namaste/AYU-DIG-001", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []*EnrichedMapping
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 2 || got[0].SourceTitle != "Grahani Roga" {
		t.Errorf("unexpected mappings %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/mappings/NAMASTE/NOPE", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list for unknown code, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ReverseMappings(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/mappings/ICD-11/8A80/reverse", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []*EnrichedMapping
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 2 {
		t.Errorf("expected 2 reverse mappings, got %s", rec.Body.String())
	}
}

func TestHandler_Translate(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/translate?sourceSystem=NAMASTE&sourceCode=AYU-MET-001&targetSystem=TM2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var plain []map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &plain)
	if len(plain) != 1 || plain[0]["targetCode"] != "TM-MET-001" {
		t.Fatalf("unexpected translation %s", rec.Body.String())
	}
	if _, ok := plain[0]["targetTitle"]; ok {
		t.Error("expected no titles without enrich")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/translate?sourceSystem=NAMASTE&sourceCode=AYU-MET-001&targetSystem=TM2&enrich=true", nil))
	if !strings.Contains(rec.Body.String(), `"targetTitle":"Sweet urine pattern"`) {
		t.Errorf("expected enriched translation, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/translate?sourceSystem=NAMASTE", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing params, got %d", rec.Code)
	}
}

func TestHandler_CreateMapping(t *testing.T) {
	h, e := newTestHandler(t)

	body := `{"sourceSystem":"tm2","sourceCode":"TM-NEU-001","targetSystem":"namaste","targetCode":"UNA-NEU-001","mappingType":"exact"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mappings", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateMapping(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m CodeMapping
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m.SourceSystem != fhir.SystemTM2 || m.TargetSystem != fhir.SystemNamaste || !m.IsActive || m.Confidence != ConfidenceHigh {
		t.Errorf("unexpected mapping %+v", m)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/mappings", strings.NewReader(`{"sourceSystem":"tm2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	expectHTTPError(t, h.CreateMapping(e.NewContext(req, rec)), http.StatusBadRequest)
}

// =========== FHIR Handler Tests ===========

func TestHandler_FHIRCodeSystem(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fhir/CodeSystem/namaste?version=3.0.0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cs fhir.CodeSystem
	json.Unmarshal(rec.Body.Bytes(), &cs)
	if cs.ResourceType != "CodeSystem" || cs.Version != "3.0.0" || cs.Count != len(seedNamaste) {
		t.Errorf("unexpected CodeSystem %s", rec.Body.String())
	}
}

func TestHandler_FHIRConceptMap(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fhir/ConceptMap/namaste-to-tm2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cm fhir.ConceptMap
	json.Unmarshal(rec.Body.Bytes(), &cm)
	if cm.TargetURI != fhir.URITM2 || len(cm.Group[0].Element) != 3 {
		t.Errorf("unexpected ConceptMap %s", rec.Body.String())
	}

	for _, id := range []string{"namaste", "loinc-to-icd-11"} {
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fhir/ConceptMap/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", id, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"OperationOutcome"`) {
			t.Errorf("%s: expected OperationOutcome body", id)
		}
	}
}

func TestHandler_SearchConceptMaps(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fhir/ConceptMap?_count=2&_offset=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bundle fhir.Bundle
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatal(err)
	}
	if bundle.Type != "searchset" || *bundle.Total != 5 || len(bundle.Entry) != 2 {
		t.Errorf("unexpected bundle type=%s total=%d entries=%d", bundle.Type, *bundle.Total, len(bundle.Entry))
	}
	if len(bundle.Link) != 3 || bundle.Link[1].URL != "/fhir/ConceptMap?_count=2&_offset=4" {
		t.Errorf("unexpected links %+v", bundle.Link)
	}
	if !strings.HasPrefix(bundle.Entry[0].FullURL, "ConceptMap/") {
		t.Errorf("unexpected fullUrl %q", bundle.Entry[0].FullURL)
	}
}

func TestHandler_DescribeCapabilities(t *testing.T) {
	h, _ := newTestHandler(t)
	b := fhir.NewCapabilityBuilder("", "test", "http://localhost/fhir")
	h.DescribeCapabilities(b)

	got := strings.Join(b.ResourceTypes(), ",")
	if got != "Bundle,CodeSystem,ConceptMap,Condition" {
		t.Errorf("unexpected resource types %s", got)
	}
}

func TestHandler_FHIRTranslate_Get(t *testing.T) {
	_, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/fhir/ConceptMap/$translate?system="+fhir.URINamaste+"&code=AYU-DIG-001&targetsystem="+fhir.URIICD11, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"valueBoolean":true`) || !strings.Contains(body, `"code":"1A00-1A9Z"`) {
		t.Errorf("unexpected Parameters %s", body)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fhir/ConceptMap/$translate?system=NAMASTE", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_FHIRTranslate_Post(t *testing.T) {
	_, e := newTestHandler(t)

	body := `{"resourceType":"Parameters","parameter":[
		{"name":"system","valueUri":"NAMASTE"},
		{"name":"code","valueCode":"UNA-NEU-001"},
		{"name":"targetsystem","valueUri":"TM2"}]}`
	req := httptest.NewRequest(http.MethodPost, "/fhir/ConceptMap/$translate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/fhir+json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"code":"TM-NEU-001"`) {
		t.Errorf("unexpected Parameters %s", rec.Body.String())
	}
}

func TestHandler_DualCode(t *testing.T) {
	_, e := newTestHandler(t)

	body := `{"patientReference":"Patient/42","primaryCode":"AYU-MET-001","note":"seen in OPD"}`
	req := httptest.NewRequest(http.MethodPost, "/fhir/Condition/$dual-code", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var cond fhir.Condition
	json.Unmarshal(rec.Body.Bytes(), &cond)
	if cond.Subject.Reference != "Patient/42" || len(cond.Code.Coding) != 3 || len(cond.Note) != 1 {
		t.Errorf("unexpected Condition %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/fhir/Condition/$dual-code", strings.NewReader(`{"primaryCode":"AYU-MET-001"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "patientReference") {
		t.Errorf("expected 400 naming patientReference, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Bundle(t *testing.T) {
	_, e := newTestHandler(t)

	tests := []struct {
		name     string
		body     string
		wantType string
		want     int
	}{
		{"array", `[{"resourceType":"Condition","id":"c1"},{"resourceType":"Patient","id":"p1"}]`, "collection", 2},
		{"object", `{"type":"document","resources":[{"resourceType":"Condition","id":"c1"}]}`, "document", 1},
		{"empty", `[]`, "collection", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/fhir/Bundle", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
			}
			var b fhir.Bundle
			json.Unmarshal(rec.Body.Bytes(), &b)
			if b.Type != tt.wantType || b.Total == nil || *b.Total != tt.want || len(b.Entry) != tt.want {
				t.Errorf("unexpected bundle %s", rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/fhir/Bundle", strings.NewReader(`[1,2]`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-object resources, got %d", rec.Code)
	}
}
