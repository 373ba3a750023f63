// Package loader reads tabular source files (CSV and XLSX) into an
// in-memory sheet model. Cell values are kept raw; typing happens later in
// the probe and coerce layers.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Row holds one record keyed by the raw header text of its column. Cells the
// source row did not provide are simply absent.
type Row map[string]any

// Sheet is one tabular unit: a named grid with a header row and data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []Row
}

// appendRecord adds one raw record to the sheet, pairing cells with headers
// by position. Cells beyond the header row are dropped.
func (s *Sheet) appendRecord(record []string) {
	row := make(Row, len(s.Headers))
	for i, h := range s.Headers {
		if h == "" || i >= len(record) {
			continue
		}
		row[h] = record[i]
	}
	s.Rows = append(s.Rows, row)
}

// cleanHeaders normalizes header cells to NFKC and trims surrounding
// whitespace. Vendor sheets exported from different tools disagree on
// composed vs decomposed accents and on no-break spaces.
func cleanHeaders(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = norm.NFKC.String(c)
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func emptyRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// LoadFile opens a source file and dispatches on its extension. CSV files
// yield a single sheet named after the file; XLSX files yield their first
// sheet.
func LoadFile(path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSVFile(path)
	case ".xlsx", ".xlsm":
		sheets, err := LoadWorkbook(path)
		if err != nil {
			return nil, err
		}
		if len(sheets) == 0 {
			return nil, fmt.Errorf("loader: no sheets in %s", path)
		}
		return sheets[0], nil
	default:
		return nil, fmt.Errorf("loader: unsupported file type %q", filepath.Ext(path))
	}
}
