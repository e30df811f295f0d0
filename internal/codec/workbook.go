package codec

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"daforfer/internal/domain"
)

// valuesHeader is the column layout of the values sheet
var valuesHeader = []interface{}{"name", "description", "value", "type"}

// WorkbookCodec exports a snapshot as an xlsx workbook with one sheet per
// table and one sheet for all values
type WorkbookCodec struct {
	valuesSheet string
}

// NewWorkbookCodec creates a workbook codec. An empty valuesSheet uses
// DefaultValuesSheet.
func NewWorkbookCodec(valuesSheet string) *WorkbookCodec {
	if valuesSheet == "" {
		valuesSheet = DefaultValuesSheet
	}
	return &WorkbookCodec{valuesSheet: valuesSheet}
}

// Format returns the codec format identifier
func (c *WorkbookCodec) Format() string {
	return "xlsx"
}

// Plan returns the sheet layout Export will produce for snapshot
func (c *WorkbookCodec) Plan(snapshot *domain.Snapshot) []Sheet {
	return PlanSheets(snapshot, c.valuesSheet)
}

// Export writes the workbook to w
func (c *WorkbookCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	plan := c.Plan(snapshot)

	f := excelize.NewFile()
	defer f.Close()

	// A new workbook starts with one sheet; rename it to the first planned one.
	first := f.GetSheetName(f.GetActiveSheetIndex())
	for i, sheet := range plan {
		if i == 0 {
			if err := f.SetSheetName(first, sheet.Name); err != nil {
				return fmt.Errorf("failed to name sheet %q: %w", sheet.Name, err)
			}
			continue
		}
		if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", sheet.Name, err)
		}
	}

	for i, t := range snapshot.Tables {
		header := make([]interface{}, len(t.Table.Columns))
		for j, name := range t.Table.ColumnNames() {
			header[j] = name
		}
		rows := make([][]interface{}, t.Table.NumRows())
		for r := range rows {
			rows[r] = cells(t.Table.Row(r))
		}
		if err := writeSheet(f, plan[i].Name, header, rows); err != nil {
			return err
		}
	}

	rows := make([][]interface{}, len(snapshot.Values))
	for r, v := range snapshot.Values {
		rows[r] = []interface{}{v.Name, v.Description, cell(v.Value), v.Type}
	}
	if err := writeSheet(f, plan[len(plan)-1].Name, valuesHeader, rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// writeSheet streams a header row and data rows into sheet
func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %q: %w", sheet, err)
	}

	if err := checkRow(header); err != nil {
		return fmt.Errorf("header of %q: %w", sheet, err)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", sheet, err)
	}
	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := checkRow(row); err != nil {
			return fmt.Errorf("row %d of %q: %w", i+1, sheet, err)
		}
		if err := sw.SetRow(axis, row); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", i+1, sheet, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %q: %w", sheet, err)
	}
	return nil
}

func cells(values []domain.Value) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = cell(v)
	}
	return out
}

// cell converts a value to what the workbook can hold. Non-finite floats
// have no spreadsheet representation and are written as text.
func cell(v domain.Value) interface{} {
	if f, ok := v.Float(); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v.Any()
}

// checkRow rejects text the stream writer would alter: invalid UTF-8,
// characters outside the XML 1.0 range and text longer than a cell holds.
func checkRow(row []interface{}) error {
	for i, v := range row {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if err := checkText(s); err != nil {
			return fmt.Errorf("column %d: %w", i+1, err)
		}
	}
	return nil
}

func checkText(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("text %q is not valid UTF-8", s)
	}
	for _, r := range s {
		if !isXMLChar(r) {
			return fmt.Errorf("text %q contains %U, which a workbook cannot hold", s, r)
		}
	}
	if n := utf8.RuneCountInString(s); n > excelize.TotalCellChars {
		return fmt.Errorf("text of %d characters exceeds the cell limit of %d", n, excelize.TotalCellChars)
	}
	return nil
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= utf8.MaxRune:
		return true
	}
	return false
}
