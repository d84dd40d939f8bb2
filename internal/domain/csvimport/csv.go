package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/medisutra/bridge/internal/domain/terminology"
)

var (
	// ErrEmptyFile is returned for input with no header row.
	ErrEmptyFile = errors.New("file is empty")
	// ErrNoDataRows is returned for input with a header but no data.
	ErrNoDataRows = errors.New("file has no data rows")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads CSV content into rows. The first record is the header;
// column names are matched case-insensitively and unknown columns ignored.
// A malformed file fails as a whole.
func ParseCSV(content []byte) ([]Row, error) {
	records, err := readRecords(content)
	if err != nil {
		return nil, err
	}
	rows, _, err := rowsFromRecords(records)
	return rows, err
}

func readRecords(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// rowsFromRecords maps header-addressed records onto rows. Records shorter
// than the header leave the missing columns empty.
func rowsFromRecords(records [][]string) ([]Row, rowNumbers, error) {
	if len(records) == 0 {
		return nil, nil, ErrEmptyFile
	}
	idx := headerIndex(records[0])
	if len(records) == 1 {
		return nil, nil, ErrNoDataRows
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]Row, 0, len(records)-1)
	lines := make(rowNumbers, 0, len(records)-1)
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		lines = append(lines, i+1)
		rows = append(rows, Row{
			Code:        get(rec, ColCode),
			Title:       get(rec, ColTitle),
			Description: get(rec, ColDescription),
			System:      get(rec, ColSystem),
			Category:    get(rec, ColCategory),
			ICDMapping:  get(rec, ColICDMapping),
			TM2Mapping:  get(rec, ColTM2Mapping),
			Synonyms:    get(rec, ColSynonyms),
			Metadata:    get(rec, ColMetadata),
		})
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoDataRows
	}
	return rows, lines, nil
}

// rowNumbers holds the 1-based data row number of each parsed row, counting
// the blank rows that were skipped. A nil value numbers rows by position.
type rowNumbers []int

func (l rowNumbers) of(i int) int {
	if i < len(l) {
		return l[i]
	}
	return i + 1
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ImportRows validates every row independently. Results keep row order;
// a code repeated within the batch fails on its second occurrence.
func ImportRows(rows []Row) *ImportResult {
	return importRows(rows, nil)
}

func importRows(rows []Row, lines rowNumbers) *ImportResult {
	res := &ImportResult{
		TotalRows: len(rows),
		Codes:     []*terminology.NamasteCode{},
		Mappings:  []*terminology.CodeMapping{},
		Errors:    []RowError{},
	}
	firstSeen := make(map[string]int)

	for i, row := range rows {
		n := lines.of(i)
		rr := ValidateRow(row)
		if rr.Valid {
			if prev, dup := firstSeen[rr.Code.Code]; dup {
				rr = RowResult{Error: fmt.Sprintf("duplicate code %s in file (first seen at row %d)", rr.Code.Code, prev)}
			} else {
				firstSeen[rr.Code.Code] = n
			}
		}
		if !rr.Valid {
			res.FailedImports++
			res.Errors = append(res.Errors, RowError{Row: n, Error: rr.Error, Data: row})
			continue
		}
		res.SuccessfulImports++
		res.Codes = append(res.Codes, rr.Code)
		res.Mappings = append(res.Mappings, rr.Mappings...)
	}
	res.Success = res.FailedImports == 0
	return res
}

// ImportFromCSV parses and validates CSV content. The returned error is
// non-nil only when the file itself cannot be read; row problems are
// reported in the result. Missing recommended columns become warnings.
func ImportFromCSV(content []byte) (*ImportResult, error) {
	records, err := readRecords(content)
	if err != nil {
		return nil, err
	}
	rows, lines, err := rowsFromRecords(records)
	if err != nil {
		return nil, err
	}
	res := importRows(rows, lines)
	res.Warnings = checkHeader(records[0]).Warnings
	return res, nil
}

// ValidateCSVStructure checks the header for the required columns. Missing
// recommended columns are warnings and never invalidate the file.
func ValidateCSVStructure(content []byte) *StructureReport {
	records, err := readRecords(content)
	if err != nil {
		return &StructureReport{Errors: []string{err.Error()}, Warnings: []string{}}
	}
	if len(records) == 0 {
		return &StructureReport{Errors: []string{ErrEmptyFile.Error()}, Warnings: []string{}}
	}
	rep := checkHeader(records[0])
	if len(records) == 1 {
		rep.Warnings = append(rep.Warnings, ErrNoDataRows.Error())
	}
	return rep
}

func checkHeader(header []string) *StructureReport {
	idx := headerIndex(header)
	rep := &StructureReport{Errors: []string{}, Warnings: []string{}}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			rep.Errors = append(rep.Errors, "missing required column: "+col)
		}
	}
	for _, col := range recommendedColumns {
		if _, ok := idx[col]; !ok {
			rep.Warnings = append(rep.Warnings, "missing recommended column: "+col)
		}
	}
	rep.Valid = len(rep.Errors) == 0
	return rep
}

var templateRows = []Row{
	{
		Code: "AYU-DIG-001", Title: "Grahani Roga",
		Description: "Disorder of the digestive fire, affecting absorption and bowel habit",
		System:      "AYU", Category: "Digestive System",
		ICDMapping: "1A00-1A9Z", TM2Mapping: "TM-GI-001",
		Synonyms: "Grahani|Sangrahani", Metadata: `{"dosha":"Vata-Pitta"}`,
	},
	{
		Code: "SID-DIG-001", Title: "Gunmam", Description: "Abdominal pain and bloating",
		System: "SID", Category: "Digestive System", ICDMapping: "DD91.0",
	},
	{
		Code: "UNA-NEU-001", Title: "Shaqeeqa", Description: "Unilateral paroxysmal headache",
		System: "UNA", Category: "Nervous System", ICDMapping: "8A80", TM2Mapping: "TM-NEU-001",
		Synonyms: "Hemicrania",
	},
}

// GenerateTemplate returns a CSV with the full header and three example rows.
func GenerateTemplate() []byte {
	data, _ := WriteCSV(templateRows)
	return data
}

// WriteCSV renders rows with the template header. Fields holding commas,
// quotes or newlines are quoted with inner quotes doubled.
func WriteCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r.fields()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (r Row) fields() []string {
	return []string{r.Code, r.Title, r.Description, r.System, r.Category,
		r.ICDMapping, r.TM2Mapping, r.Synonyms, r.Metadata}
}
