package csvimport

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX_RoundTrip(t *testing.T) {
	data, err := GenerateTemplateXLSX()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := ParseXLSX(data)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !reflect.DeepEqual(rows, templateRows) {
		t.Errorf("rows changed on round trip:\n%+v", rows)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 1 || got[0] != templateSheet {
		t.Errorf("expected single %s sheet, got %v", templateSheet, got)
	}
}

func TestImportFromXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Code", "Title", "System", "Category", "ICD_Mapping"})
	f.SetSheetRow("Sheet1", "A2", &[]interface{}{"AYU-MET-001", "Madhumeha", "ayu", "Metabolic", "5A11"})
	f.SetSheetRow("Sheet1", "A3", &[]interface{}{"", "No code", "AYU", "Metabolic"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	res, err := ImportFromXLSX(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalRows != 2 || res.SuccessfulImports != 1 || res.FailedImports != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Codes[0].System != "AYU" || res.Mappings[0].TargetCode != "5A11" {
		t.Errorf("unexpected records %+v %+v", res.Codes[0], res.Mappings[0])
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected warnings for description and tm2_mapping, got %v", res.Warnings)
	}
}

func TestParseXLSX_NotAWorkbook(t *testing.T) {
	if _, err := ParseXLSX([]byte("code,title\n")); err == nil {
		t.Error("expected error for non-xlsx content")
	}
}
