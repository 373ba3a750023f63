package loader

import (
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	data := "\xEF\xBB\xBFContainer No.,YOM,Grade\n" +
		"TRIU1234567,2019,A\n" +
		",,\n" +
		"MSKU7654321,2021\n" // ragged: grade missing

	sheet, err := LoadCSV(strings.NewReader(data), "master")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if sheet.Name != "master" {
		t.Fatalf("sheet name = %q, want master", sheet.Name)
	}
	if got := sheet.Headers; len(got) != 3 || got[0] != "Container No." {
		t.Fatalf("headers = %v", got)
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank row skipped)", len(sheet.Rows))
	}
	if sheet.Rows[0]["YOM"] != "2019" {
		t.Fatalf("row 0 YOM = %v, want 2019", sheet.Rows[0]["YOM"])
	}
	if _, ok := sheet.Rows[1]["Grade"]; ok {
		t.Fatalf("short row grew a Grade cell: %v", sheet.Rows[1])
	}
}

func TestLoadCSVHeaderCleanup(t *testing.T) {
	t.Parallel()

	// No-break space and trailing blanks around headers.
	data := "Container No, YOM \nTRIU1234567,2019\n"
	sheet, err := LoadCSV(strings.NewReader(data), "master")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if sheet.Headers[0] != "Container No" || sheet.Headers[1] != "YOM" {
		t.Fatalf("headers = %v", sheet.Headers)
	}
}

// Legacy exports arrive Windows-1252 encoded; bytes outside ASCII must
// decode instead of poisoning the cell with invalid UTF-8.
func TestLoadCSVWindows1252(t *testing.T) {
	t.Parallel()

	data := "Customer,Container No\nM\xF8ller Lines,TRIU1234567\n"
	sheet, err := LoadCSV(strings.NewReader(data), "master")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if got := sheet.Rows[0]["Customer"]; got != "Møller Lines" {
		t.Fatalf("customer = %q, want Møller Lines", got)
	}
}

func TestLoadCSVNoHeader(t *testing.T) {
	t.Parallel()

	if _, err := LoadCSV(strings.NewReader("\n \n"), "empty"); err == nil {
		t.Fatal("LoadCSV on empty input: got nil error")
	}
}

func TestLoadWorkbookReader(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"Container No.", "YOM"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{"TRIU1234567", 2019}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if _, err := f.NewSheet("Requests"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	if err := f.SetSheetRow("Requests", "A1", &[]any{"Job Order", "Container No."}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetSheetRow("Requests", "A2", &[]any{"JO-1001", "TRIU1234567"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	sheets, err := LoadWorkbookReader(buf)
	if err != nil {
		t.Fatalf("LoadWorkbookReader: %v", err)
	}
	if len(sheets) != 2 {
		t.Fatalf("got %d sheets, want 2", len(sheets))
	}
	if sheets[0].Name != "Sheet1" || sheets[1].Name != "Requests" {
		t.Fatalf("sheet order = %s, %s", sheets[0].Name, sheets[1].Name)
	}
	if sheets[1].Rows[0]["Job Order"] != "JO-1001" {
		t.Fatalf("Requests row = %v", sheets[1].Rows[0])
	}
}
