// Package tabular reads patient uploads (CSV or XLSX) into header-keyed
// records and writes batch results back out as CSV.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Errors returned by the readers.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file has no header row")
)

// Format of an uploaded file.
type Format string

// Supported formats.
const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// Table is a parsed upload. Column names are trimmed and lower-cased.
type Table struct {
	Columns []string
	Records []map[string]string
}

// Has reports whether the table has column name.
func (t Table) Has(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Duplicates returns the values of column that occur more than once, in
// first-seen order. Blank values are ignored.
func (t Table) Duplicates(column string) []string {
	seen := make(map[string]int, len(t.Records))
	var dups []string
	for _, r := range t.Records {
		v := r[column]
		if v == "" {
			continue
		}
		seen[v]++
		if seen[v] == 2 {
			dups = append(dups, v)
		}
	}
	return dups
}

// FormatOf picks the reader from a file name.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return CSV, nil
	case ".xlsx":
		return XLSX, nil
	default:
		return "", eris.Wrapf(ErrUnsupportedFormat, "tabular: %q", name)
	}
}

// Read parses data according to the extension of name.
func Read(name string, data []byte) (Table, error) {
	format, err := FormatOf(name)
	if err != nil {
		return Table{}, err
	}
	if format == XLSX {
		return ReadXLSX(data)
	}
	return ReadCSV(bytes.NewReader(data))
}

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, eris.Wrap(err, "tabular: read csv row")
		}
		rows = append(rows, record)
	}
	return fromRows(rows)
}

// ReadXLSX parses the first sheet of a workbook with a header row.
func ReadXLSX(data []byte) (Table, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return Table{}, eris.Wrap(err, "tabular: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return Table{}, eris.Wrap(ErrEmptyFile, "tabular: workbook has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (Table, error) {
	if len(rows) == 0 {
		return Table{}, eris.Wrap(ErrEmptyFile, "tabular")
	}
	t := Table{Columns: make([]string, len(rows[0]))}
	for i, h := range rows[0] {
		t.Columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if col == "" || i >= len(row) {
				continue
			}
			rec[col] = strings.TrimSpace(row[i])
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes a header and rows.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "tabular: write rows")
	}
	return nil
}
