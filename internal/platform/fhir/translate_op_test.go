package fhir

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildTranslateParameters(t *testing.T) {
	params := BuildTranslateParameters([]TranslateMatch{
		{Equivalence: "equal", System: URIICD11, Code: "8A00", Display: "d", Source: "http://x/cm"},
	})

	if params.ResourceType != "Parameters" {
		t.Fatalf("unexpected resourceType %s", params.ResourceType)
	}
	if len(params.Parameter) != 3 {
		t.Fatalf("expected result, message and one match, got %d", len(params.Parameter))
	}
	result, ok := params.Get("result")
	if !ok || result.ValueBoolean == nil || !*result.ValueBoolean {
		t.Errorf("expected result true, got %+v", result)
	}
	match, _ := params.Get("match")
	if len(match.Part) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(match.Part))
	}
	coding := match.Part[1].ValueCoding
	if coding == nil || coding.Code != "8A00" || coding.System != URIICD11 {
		t.Errorf("unexpected coding %+v", coding)
	}
	if match.Part[2].ValueURI != "http://x/cm" {
		t.Errorf("expected source part, got %+v", match.Part[2])
	}
}

func TestBuildTranslateParameters_NoMatch(t *testing.T) {
	params := BuildTranslateParameters(nil)
	if len(params.Parameter) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(params.Parameter))
	}
	if v := params.Parameter[0].ValueBoolean; v == nil || *v {
		t.Error("expected result false")
	}
	if msg, _ := params.Get("message"); msg.ValueString != "No translations found" {
		t.Errorf("unexpected message %+v", msg)
	}

	// false must still be written out
	data, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"valueBoolean":false`) {
		t.Errorf("expected explicit false result, got %s", data)
	}
}
