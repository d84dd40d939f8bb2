package csvimport

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

const fullHeader = "code,title,description,system,category,icd_mapping,tm2_mapping,synonyms,metadata\n"

// =========== Parse Tests ===========

func TestParseCSV_HeaderCaseAndOrder(t *testing.T) {
	content := "Category,SYSTEM,Title,Code,extra\nDigestive,AYU,Grahani Roga,AYU-DIG-001,ignored\n"
	rows, err := ParseCSV([]byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Row{Code: "AYU-DIG-001", Title: "Grahani Roga", System: "AYU", Category: "Digestive"}
	if len(rows) != 1 || rows[0] != want {
		t.Errorf("expected %+v, got %+v", want, rows)
	}
}

func TestParseCSV_BOMAndShortRecords(t *testing.T) {
	content := "\ufeff" + fullHeader + "AYU-DIG-001,Grahani Roga\n\n,,,\n"
	rows, err := ParseCSV([]byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected blank lines to be skipped, got %d rows", len(rows))
	}
	if rows[0].Code != "AYU-DIG-001" || rows[0].System != "" {
		t.Errorf("unexpected row %+v", rows[0])
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"empty", "", ErrEmptyFile},
		{"header only", fullHeader, ErrNoDataRows},
		{"blank rows only", fullHeader + ",,,,\n", ErrNoDataRows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV([]byte(tt.content)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := ParseCSV([]byte(fullHeader + "AYU-1,un\"quoted,AYU,Cat\n")); err == nil {
		t.Error("expected malformed CSV to fail")
	}
}

// =========== Import Tests ===========

func TestImportFromCSV_EndToEndRow(t *testing.T) {
	content := fullHeader + "AYU-DIG-001,Grahani Roga,,AYU,Digestive System,1A00-1A9Z,TM-GI-001,,\n"
	res, err := ImportFromCSV([]byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.TotalRows != 1 || len(res.Codes) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Codes[0].Code != "AYU-DIG-001" || res.Codes[0].System != "AYU" {
		t.Errorf("unexpected code %+v", res.Codes[0])
	}
	if len(res.Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(res.Mappings))
	}
	icd, tm2 := res.Mappings[0], res.Mappings[1]
	if icd.SourceCode != "AYU-DIG-001" || icd.TargetSystem != fhir.SystemICD11 || icd.TargetCode != "1A00-1A9Z" || icd.Confidence != "medium" {
		t.Errorf("unexpected ICD mapping %+v", icd)
	}
	if tm2.TargetSystem != fhir.SystemTM2 || tm2.TargetCode != "TM-GI-001" || tm2.Confidence != "high" {
		t.Errorf("unexpected TM2 mapping %+v", tm2)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings for full header, got %v", res.Warnings)
	}
}

func TestImportFromCSV_PartialFailureIsolation(t *testing.T) {
	content := fullHeader +
		"AYU-1,One,,AYU,Cat,,,,\n" +
		",Missing code,,AYU,Cat,,,,\n" +
		"SID-1,Two,,SID,Cat,,,,\n" +
		"UNA-1,Bad system,,XYZ,Cat,,,,\n" +
		"UNA-2,Three,,una,Cat,,,,\n"

	res, err := ImportFromCSV([]byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("expected unsuccessful import")
	}
	if res.TotalRows != 5 || res.SuccessfulImports != 3 || res.FailedImports != 2 || len(res.Codes) != 3 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Errors[0].Row != 2 || res.Errors[1].Row != 4 {
		t.Errorf("expected failing rows 2 and 4, got %d and %d", res.Errors[0].Row, res.Errors[1].Row)
	}
	if res.Errors[1].Data.Code != "UNA-1" {
		t.Errorf("expected offending row data, got %+v", res.Errors[1].Data)
	}
	if res.Codes[2].Code != "UNA-2" {
		t.Errorf("expected codes in row order, got %s", res.Codes[2].Code)
	}
}

func TestImportFromCSV_RowNumbersCountBlankRows(t *testing.T) {
	content := fullHeader +
		"AYU-1,One,,AYU,Cat,,,,\n" +
		",,,,,,,,\n" +
		"UNA-1,Bad system,,XYZ,Cat,,,,\n" +
		"AYU-1,Again,,AYU,Cat,,,,\n"

	res, err := ImportFromCSV([]byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalRows != 3 || len(res.Errors) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].Row != 3 || res.Errors[1].Row != 4 {
		t.Errorf("expected failing rows 3 and 4, got %d and %d", res.Errors[0].Row, res.Errors[1].Row)
	}
	if !strings.Contains(res.Errors[1].Error, "first seen at row 1") {
		t.Errorf("unexpected error %q", res.Errors[1].Error)
	}
}

func TestImportRows_DuplicateInBatch(t *testing.T) {
	rows := []Row{validRow(), validRow()}
	res := ImportRows(rows)
	if res.SuccessfulImports != 1 || res.FailedImports != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if res.Errors[0].Row != 2 || !strings.Contains(res.Errors[0].Error, "first seen at row 1") {
		t.Errorf("unexpected error %+v", res.Errors[0])
	}
	if len(res.Mappings) != 2 {
		t.Errorf("expected mappings of the first occurrence only, got %d", len(res.Mappings))
	}
}

func TestImportFromCSV_WarnsOnMissingRecommended(t *testing.T) {
	res, err := ImportFromCSV([]byte("code,title,system,category\nAYU-1,One,AYU,Cat\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || len(res.Warnings) != 3 {
		t.Errorf("expected success with 3 warnings, got %+v", res)
	}
}

// =========== Structure Tests ===========

func TestValidateCSVStructure(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		valid    bool
		errors   int
		warnings int
	}{
		{"full header", fullHeader + "a,b,c,AYU,d,,,,\n", true, 0, 0},
		{"required only", "code,title,system,category\na,b,AYU,c\n", true, 0, 3},
		{"missing required", "code,title,description\na,b,c\n", false, 2, 2},
		{"header only", fullHeader, true, 0, 1},
		{"empty", "", false, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := ValidateCSVStructure([]byte(tt.content))
			if rep.Valid != tt.valid || len(rep.Errors) != tt.errors || len(rep.Warnings) != tt.warnings {
				t.Errorf("expected valid=%v errors=%d warnings=%d, got %+v", tt.valid, tt.errors, tt.warnings, rep)
			}
		})
	}
}

// =========== Template Tests ===========

func TestGenerateTemplate_ParsesBack(t *testing.T) {
	data := GenerateTemplate()
	if !strings.HasPrefix(string(data), strings.TrimSuffix(fullHeader, "\n")) {
		t.Errorf("unexpected header line in %q", data)
	}
	rows, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if !reflect.DeepEqual(rows, templateRows) {
		t.Errorf("template rows changed on parse:\n%+v", rows)
	}

	res, err := ImportFromCSV(data)
	if err != nil || !res.Success || len(res.Codes) != 3 || len(res.Mappings) != 5 {
		t.Errorf("expected template to import cleanly, got %+v, %v", res, err)
	}
}

func TestWriteCSV_Quoting(t *testing.T) {
	data, err := WriteCSV([]Row{{Code: "A", Title: `say "hi", ok`}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"say ""hi"", ok"`) {
		t.Errorf("expected RFC 4180 quoting, got %q", data)
	}
	rows, _ := ParseCSV(data)
	if rows[0].Title != `say "hi", ok` {
		t.Errorf("expected title to survive, got %q", rows[0].Title)
	}
}
