package loader

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// rawCells asks excelize for unformatted values so date cells arrive as
// their underlying serial numbers instead of locale-formatted strings.
var rawCells = excelize.Options{RawCellValue: true}

// LoadWorkbook reads every sheet of an XLSX workbook, in workbook order.
// Sheets without a header row are skipped.
func LoadWorkbook(path string) ([]*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open workbook: %w", err)
	}
	defer f.Close()

	return readWorkbook(f)
}

// LoadWorkbookReader is LoadWorkbook over an io.Reader.
func LoadWorkbookReader(r io.Reader) ([]*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("loader: open workbook: %w", err)
	}
	defer f.Close()

	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) ([]*Sheet, error) {
	var sheets []*Sheet
	for _, name := range f.GetSheetList() {
		sheet, err := readSheet(f, name)
		if err != nil {
			return nil, err
		}
		if sheet != nil {
			sheets = append(sheets, sheet)
		}
	}
	return sheets, nil
}

func readSheet(f *excelize.File, name string) (*Sheet, error) {
	iter, err := f.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("loader: sheet %s: %w", name, err)
	}
	defer iter.Close()

	sheet := &Sheet{Name: name}
	for iter.Next() {
		record, err := iter.Columns(rawCells)
		if err != nil {
			return nil, fmt.Errorf("loader: sheet %s: %w", name, err)
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
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("loader: sheet %s: %w", name, err)
	}

	if sheet.Headers == nil {
		return nil, nil
	}
	return sheet, nil
}
