package results

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pdf-extractor/backend/internal/models"
)

const (
	combinedSheet = "Combined"
	maxSheetName  = 31
)

// WorkbookXLSX renders a result set as a workbook with one sheet for the
// combined record and one per document.
func WorkbookXLSX(set *models.ResultSet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", combinedSheet); err != nil {
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}
	writeSheet(f, combinedSheet, set.Query, set.Combined)

	used := map[string]bool{strings.ToLower(combinedSheet): true}
	for _, d := range set.Documents {
		name := sheetName(d.Name, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("adding sheet for %s: %w", d.Name, err)
		}
		writeSheet(f, name, set.Query, d.Data)
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet, query string, rec models.Record) {
	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, 1, "Query")
	write(2, 1, query)
	write(1, 3, "Field")
	write(2, 3, "Value")

	row := 4
	for _, r := range Table(rec) {
		write(1, row, r.Field)
		write(2, row, r.Value)
		row++
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "A1", style)
		_ = f.SetCellStyle(sheet, "A3", "B3", style)
	}
	_ = f.SetColWidth(sheet, "A", "A", 24)
	_ = f.SetColWidth(sheet, "B", "B", 60)
}

// sheetName derives a unique, valid worksheet name from a document name.
func sheetName(name string, used map[string]bool) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSuffix(name, ".pdf"))
	base = strings.Trim(base, "'")
	if base == "" {
		base = "Document"
	}

	candidate := truncateName(base, maxSheetName)
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateName(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateName(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
