package fhir

import (
	"encoding/json"
	"testing"
)

func TestOperationOutcome_JSON(t *testing.T) {
	data, err := json.Marshal(NotFoundOutcome("CodeSystem", "abc"))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if parsed["resourceType"] != "OperationOutcome" {
		t.Errorf("expected OperationOutcome, got %v", parsed["resourceType"])
	}
	issue := parsed["issue"].([]interface{})[0].(map[string]interface{})
	if issue["code"] != "not-found" || issue["diagnostics"] != "CodeSystem/abc not found" {
		t.Errorf("unexpected issue %v", issue)
	}
}

func TestRequiredOutcome(t *testing.T) {
	oo := RequiredOutcome("code")
	if oo.Issue[0].Code != "required" || oo.Issue[0].Diagnostics != "Parameter 'code' is required" {
		t.Errorf("unexpected outcome %+v", oo.Issue[0])
	}
}

func TestNamespaces(t *testing.T) {
	ns := DefaultNamespaces()
	if ns.URI(SystemICD11) != URIICD11 {
		t.Errorf("unexpected ICD-11 uri %s", ns.URI(SystemICD11))
	}
	if ns.URI("http://snomed.info/sct") != "http://snomed.info/sct" {
		t.Error("expected unknown systems to pass through")
	}
	if ns.System(URITM2) != SystemTM2 {
		t.Errorf("unexpected inverse lookup %s", ns.System(URITM2))
	}

	custom := ns.WithNamaste("http://example.org/n")
	if custom.URI(SystemNamaste) != "http://example.org/n" {
		t.Error("expected override")
	}
	if ns.URI(SystemNamaste) != URINamaste {
		t.Error("WithNamaste must not mutate the receiver")
	}
}

func TestCoding_OmitEmpty(t *testing.T) {
	data, _ := json.Marshal(Coding{Code: "X"})
	if string(data) != `{"code":"X"}` {
		t.Errorf("unexpected json %s", data)
	}
}
