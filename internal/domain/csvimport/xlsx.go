package csvimport

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "NAMASTE"

var columnWidths = []float64{14, 28, 48, 10, 22, 16, 16, 24, 30}

// ParseXLSX reads the first sheet of a workbook with the same header rules
// as ParseCSV.
func ParseXLSX(content []byte) ([]Row, error) {
	records, err := readSheet(content)
	if err != nil {
		return nil, err
	}
	rows, _, err := rowsFromRecords(records)
	return rows, err
}

// ImportFromXLSX is the workbook counterpart of ImportFromCSV.
func ImportFromXLSX(content []byte) (*ImportResult, error) {
	records, err := readSheet(content)
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

func readSheet(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return records, nil
}

// GenerateTemplateXLSX returns the template rows as a workbook with a bold
// frozen header.
func GenerateTemplateXLSX() ([]byte, error) {
	return WriteXLSX(templateRows)
}

// WriteXLSX renders rows into a single-sheet workbook.
func WriteXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(templateSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(templateSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(templateSheet, col, col, columnWidths[i]); err != nil {
			return nil, fmt.Errorf("set width %s: %w", col, err)
		}
	}

	for r, row := range rows {
		for c, v := range row.fields() {
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(templateSheet, cell, v); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(templateSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
