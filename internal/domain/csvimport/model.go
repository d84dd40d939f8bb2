// Package csvimport turns tabular NAMASTE data into terminology records.
package csvimport

import (
	"github.com/medisutra/bridge/internal/domain/terminology"
)

// Column names, in template order.
const (
	ColCode        = "code"
	ColTitle       = "title"
	ColDescription = "description"
	ColSystem      = "system"
	ColCategory    = "category"
	ColICDMapping  = "icd_mapping"
	ColTM2Mapping  = "tm2_mapping"
	ColSynonyms    = "synonyms"
	ColMetadata    = "metadata"
)

// Header is the full column set written by GenerateTemplate.
var Header = []string{
	ColCode, ColTitle, ColDescription, ColSystem, ColCategory,
	ColICDMapping, ColTM2Mapping, ColSynonyms, ColMetadata,
}

var (
	requiredColumns    = []string{ColCode, ColTitle, ColSystem, ColCategory}
	recommendedColumns = []string{ColDescription, ColICDMapping, ColTM2Mapping}
)

// Row is one data row. List-valued columns are pipe-delimited; Metadata
// holds a JSON object.
type Row struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	System      string `json:"system"`
	Category    string `json:"category"`
	ICDMapping  string `json:"icd_mapping,omitempty"`
	TM2Mapping  string `json:"tm2_mapping,omitempty"`
	Synonyms    string `json:"synonyms,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
}

// RowResult is the outcome of validating one row.
type RowResult struct {
	Valid    bool                       `json:"valid"`
	Code     *terminology.NamasteCode   `json:"code,omitempty"`
	Mappings []*terminology.CodeMapping `json:"mappings,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// RowError reports a rejected row. Row is 1-based over data rows, counting
// skipped blank rows.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
	Data  Row    `json:"data"`
}

// ImportResult summarizes a batch. Success is true only when no row failed.
type ImportResult struct {
	Success           bool                       `json:"success"`
	TotalRows         int                        `json:"totalRows"`
	SuccessfulImports int                        `json:"successfulImports"`
	FailedImports     int                        `json:"failedImports"`
	Persisted         bool                       `json:"persisted"`
	Codes             []*terminology.NamasteCode `json:"codes"`
	Mappings          []*terminology.CodeMapping `json:"mappings"`
	Errors            []RowError                 `json:"errors"`
	Warnings          []string                   `json:"warnings,omitempty"`
}

// StructureReport is the result of ValidateCSVStructure.
type StructureReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
