// Command sheet-probe inspects a spreadsheet without touching a database.
//
// It reads a CSV file or every sheet of an XLSX workbook, runs the same
// header mapping and type inference the importers use, and prints the
// column plan: raw header, mapped column name, and inferred type.
// Duplicate headers that would be ignored on import are flagged.
//
// Useful for checking what a vendor export will turn into before running
// reefer-import or fleet-import against it.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"fleetimport/internal/coerce"
	"fleetimport/internal/loader"
	"fleetimport/internal/probe"
)

func main() {
	limit := flag.Int("sample", probe.SampleLimit, "number of rows to sample for type inference")
	flag.Parse()

	if flag.NArg() < 1 {
		fatalf("usage: sheet-probe [flags] file.csv|file.xlsx")
	}
	path := flag.Arg(0)

	var sheets []*loader.Sheet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		var err error
		sheets, err = loader.LoadWorkbook(path)
		if err != nil {
			fatalf("load %s: %v", path, err)
		}
	default:
		sheet, err := loader.LoadFile(path)
		if err != nil {
			fatalf("load %s: %v", path, err)
		}
		sheets = []*loader.Sheet{sheet}
	}
	if len(sheets) == 0 {
		fatalf("%s: no usable sheets", path)
	}

	for i, sheet := range sheets {
		if i > 0 {
			fmt.Println()
		}
		printPlan(sheet, *limit)
	}
}

func printPlan(sheet *loader.Sheet, limit int) {
	rows := make([]map[string]any, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		rows = append(rows, r)
	}
	cols, byHeader := probe.BuildColumns(sheet.Headers, rows, limit, nil)

	kinds := make(map[string]coerce.Kind, len(cols))
	for _, c := range cols {
		kinds[c.Name] = c.Kind
	}

	fmt.Printf("sheet %s: %d rows, %d columns\n", sheet.Name, len(sheet.Rows), len(cols))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HEADER\tCOLUMN\tTYPE")
	for _, h := range sheet.Headers {
		col := byHeader[h]
		if col == "" {
			fmt.Fprintf(w, "%s\t-\tduplicate, ignored\n", h)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", h, col, kinds[col])
	}
	w.Flush()
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "sheet-probe: "+format+"\n", a...)
	os.Exit(1)
}
