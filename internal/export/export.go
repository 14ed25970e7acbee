// Package export writes the loaded page of a table to CSV or XLSX. It reads
// the visible columns and the selection and never changes either.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// Format is an output file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	}
	return "", fmt.Errorf("%w: %q (want csv or xlsx)", util.ErrUnknownFormat, s)
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Table is what gets exported.
type Table struct {
	// Title names the XLSX sheet.
	Title     string
	Columns   []viewstate.Column
	Rows      []record.Record
	Selection viewstate.Set
	RowID     func(record.Record) string
}

// Selected returns the rows to export: the selected ones when a selection
// exists, every row otherwise.
func (t Table) Selected() []record.Record {
	if len(t.Selection) == 0 || t.RowID == nil {
		return t.Rows
	}
	out := make([]record.Record, 0, len(t.Selection))
	for _, r := range t.Rows {
		if t.Selection.Has(t.RowID(r)) {
			out = append(out, r)
		}
	}
	return out
}

// Write renders t to w in format f.
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case CSV:
		return writeCSV(w, t)
	case XLSX:
		return writeXLSX(w, t)
	}
	return fmt.Errorf("%w: %q", util.ErrUnknownFormat, f)
}

func header(cols []viewstate.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Title
		if out[i] == "" {
			out[i] = c.ID
		}
	}
	return out
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(t.Columns)); err != nil {
		return err
	}
	line := make([]string, len(t.Columns))
	for _, r := range t.Selected() {
		for i, c := range t.Columns {
			line[i] = r.String(c.ID)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(t.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	head := header(t.Columns)
	headRow := make([]any, len(head))
	for i, h := range head {
		headRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headRow); err != nil {
		return err
	}
	if len(head) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(head), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}
	}

	for n, r := range t.Selected() {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = cellValue(r[c.ID])
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.Write(w)
}

// cellValue keeps numbers, booleans and times typed in the sheet.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if n, err := x.Float64(); err == nil {
			return n
		}
		return x.String()
	case bool, int, int32, int64, float32, float64, time.Time:
		return x
	default:
		return record.Format(x)
	}
}

// sheetName makes title acceptable as a sheet name.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return "Export"
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}
