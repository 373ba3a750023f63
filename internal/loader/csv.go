package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadCSVFile reads a CSV file into a sheet named after the file.
func LoadCSVFile(path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open csv: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadCSV(f, name)
}

// LoadCSV reads CSV data from r. The first non-empty record is the header
// row. Ragged records are accepted; short rows leave trailing cells absent.
// Input that is not valid UTF-8 is decoded as Windows-1252, which is what
// the legacy vendor exports arrive in.
func LoadCSV(r io.Reader, name string) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data, err = charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("loader: decode csv: %w", err)
		}
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	sheet := &Sheet{Name: name}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loader: read csv: %w", err)
		}
		if emptyRecord(record) {
			continue
		}
		if sheet.Headers == nil {
			sheet.Headers = cleanHeaders(record)
			continue
		}
		sheet.appendRecord(record)
	}

	if sheet.Headers == nil {
		return nil, fmt.Errorf("loader: csv %s has no header row", name)
	}
	return sheet, nil
}
