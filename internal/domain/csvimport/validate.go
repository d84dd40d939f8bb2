package csvimport

import (
	"encoding/json"
	"strings"

	"github.com/medisutra/bridge/internal/domain/terminology"
	"github.com/medisutra/bridge/internal/platform/fhir"
)

// ValidateRow checks a row and, when valid, builds its NAMASTE code and
// mapping records. Every violation in the row is reported in one message.
// ICD targets get medium confidence and TM2 targets high.
func ValidateRow(row Row) RowResult {
	code := strings.TrimSpace(row.Code)
	title := strings.TrimSpace(row.Title)
	system := strings.ToUpper(strings.TrimSpace(row.System))
	category := strings.TrimSpace(row.Category)

	var problems []string
	if code == "" {
		problems = append(problems, "code is required")
	}
	if title == "" {
		problems = append(problems, "title is required")
	}
	if !terminology.IsNamasteSystem(system) {
		problems = append(problems, "system must be one of "+strings.Join(terminology.NamasteSystems, ", "))
	}
	if category == "" {
		problems = append(problems, "category is required")
	}
	if len(problems) > 0 {
		return RowResult{Valid: false, Error: strings.Join(problems, "; ")}
	}

	nc := &terminology.NamasteCode{
		Term: terminology.Term{
			Code:        code,
			Title:       title,
			Description: strings.TrimSpace(row.Description),
			Metadata:    buildMetadata(row.Synonyms, row.Metadata),
		},
		System:   system,
		Category: category,
	}

	var mappings []*terminology.CodeMapping
	for _, target := range splitPipe(row.ICDMapping) {
		mappings = append(mappings, newMapping(code, fhir.SystemICD11, target, terminology.ConfidenceMedium))
	}
	for _, target := range splitPipe(row.TM2Mapping) {
		mappings = append(mappings, newMapping(code, fhir.SystemTM2, target, terminology.ConfidenceHigh))
	}
	for _, m := range mappings {
		switch {
		case m.TargetSystem == fhir.SystemICD11 && nc.ICDMapping == "":
			nc.ICDMapping = m.TargetCode
		case m.TargetSystem == fhir.SystemTM2 && nc.TM2Mapping == "":
			nc.TM2Mapping = m.TargetCode
		}
	}

	return RowResult{Valid: true, Code: nc, Mappings: mappings}
}

func newMapping(sourceCode, targetSystem, targetCode, confidence string) *terminology.CodeMapping {
	return &terminology.CodeMapping{
		SourceSystem: fhir.SystemNamaste,
		SourceCode:   sourceCode,
		TargetSystem: targetSystem,
		TargetCode:   targetCode,
		MappingType:  terminology.MappingRelated,
		Confidence:   confidence,
		IsActive:     true,
	}
}

func splitPipe(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildMetadata merges the metadata JSON object and the synonyms list. Text
// that is not a JSON object is kept under "raw".
func buildMetadata(synonyms, raw string) terminology.Metadata {
	md := terminology.Metadata{}
	if raw = strings.TrimSpace(raw); raw != "" {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
			for k, v := range obj {
				md[k] = v
			}
		} else {
			md["raw"] = raw
		}
	}
	if syn := splitPipe(synonyms); len(syn) > 0 {
		md["synonyms"] = syn
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// RowFromRecords rebuilds an input row from a NAMASTE code and its
// outgoing mappings. Validating the result yields the same records.
func RowFromRecords(c *terminology.NamasteCode, mappings []*terminology.CodeMapping) Row {
	row := Row{
		Code:        c.Code,
		Title:       c.Title,
		Description: c.Description,
		System:      c.System,
		Category:    c.Category,
	}
	var icd, tm2 []string
	for _, m := range mappings {
		switch m.TargetSystem {
		case fhir.SystemICD11:
			icd = append(icd, m.TargetCode)
		case fhir.SystemTM2:
			tm2 = append(tm2, m.TargetCode)
		}
	}
	row.ICDMapping = strings.Join(icd, "|")
	row.TM2Mapping = strings.Join(tm2, "|")

	rest := make(map[string]interface{}, len(c.Metadata))
	for k, v := range c.Metadata {
		if k == "synonyms" {
			row.Synonyms = strings.Join(stringList(v), "|")
			continue
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		if data, err := json.Marshal(rest); err == nil {
			row.Metadata = string(data)
		}
	}
	return row
}

func stringList(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, x := range s {
			if str, ok := x.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{s}
	}
	return nil
}
