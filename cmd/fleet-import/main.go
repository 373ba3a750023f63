// Command fleet-import imports a service workbook (orders plus quotations)
// into the fleet database: customers, containers with ownership history, and
// service requests keyed by job order.
//
// Usage:
//
//	fleet-import [flags] workbook.xlsx
//
// By default the first sheet is treated as orders and the second, when
// present, as quotations merged in on the shared order/quotation numbers.
// Exit code is 0 when every row imported cleanly and 1 when any row errored.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fleetimport/internal/loader"
	"fleetimport/internal/metrics"
	"fleetimport/internal/metrics/datadog"
	"fleetimport/internal/pipeline"
	"fleetimport/internal/storage"

	// register all backends with the storage factory.
	_ "fleetimport/internal/storage/all"
)

func main() {
	var (
		backendFlg string
		dsnFlg     string
		ordersFlg  string
		quotesFlg  string
		keysFlg    string
		metricsFlg string
	)

	flag.StringVar(&backendFlg, "backend", "postgres", "storage backend kind (postgres, sqlite, mssql)")
	flag.StringVar(&dsnFlg, "dsn", "", "database DSN (overrides env DATABASE_URL)")
	flag.StringVar(&ordersFlg, "orders-sheet", "", "orders sheet name (default: first sheet)")
	flag.StringVar(&quotesFlg, "quotes-sheet", "", "quotations sheet name (default: second sheet; 'none' to skip the merge)")
	flag.StringVar(&keysFlg, "merge-keys", "", "comma-separated column names joining the two sheets (default: order_no,quotation_no)")
	flag.StringVar(&metricsFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")

	flag.Parse()

	_ = godotenv.Load()

	if flag.NArg() < 1 {
		fatalf("usage: fleet-import [flags] workbook.xlsx")
	}
	path := flag.Arg(0)

	dsn := dsnFlg
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		fatalf("no DSN: pass -dsn or set DATABASE_URL")
	}

	stopMetrics := setupMetrics(metricsFlg)

	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{Kind: backendFlg, DSN: dsn})
	if err != nil {
		fatalf("open storage: %v", err)
	}
	defer store.Close()

	sheets, err := loader.LoadWorkbook(path)
	if err != nil {
		fatalf("load %s: %v", path, err)
	}
	if len(sheets) == 0 {
		fatalf("%s: no usable sheets", path)
	}

	orders, quotes, err := pickSheets(sheets, ordersFlg, quotesFlg)
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("loaded file=%s orders=%s rows=%d", path, orders.Name, len(orders.Rows))
	if quotes != nil {
		log.Printf("merging quotes=%s rows=%d", quotes.Name, len(quotes.Rows))
	}

	fields := pipeline.FleetFields{}
	if keysFlg != "" {
		for _, k := range strings.Split(keysFlg, ",") {
			if k = strings.TrimSpace(k); k != "" {
				fields.MergeKeys = append(fields.MergeKeys, k)
			}
		}
	}

	imp := pipeline.New(store, log.Default())
	if err := imp.ImportFleet(ctx, orders, quotes, fields); err != nil {
		fatalf("import: %v", err)
	}

	imp.Run.Summarize(log.Default())
	stopMetrics()
	if imp.Run.Errored() > 0 {
		os.Exit(1)
	}
}

// pickSheets resolves the orders and quotations sheets from the workbook.
// Names are matched case-insensitively; empty names fall back to position.
// quotes comes back nil when the workbook has a single sheet or the merge
// is disabled with -quotes-sheet=none.
func pickSheets(sheets []*loader.Sheet, ordersName, quotesName string) (orders, quotes *loader.Sheet, err error) {
	byName := func(name string) *loader.Sheet {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, name) {
				return s
			}
		}
		return nil
	}

	orders = sheets[0]
	if ordersName != "" {
		if orders = byName(ordersName); orders == nil {
			return nil, nil, fmt.Errorf("orders sheet %q not found in workbook", ordersName)
		}
	}

	switch {
	case strings.EqualFold(quotesName, "none"):
	case quotesName != "":
		if quotes = byName(quotesName); quotes == nil {
			return nil, nil, fmt.Errorf("quotes sheet %q not found in workbook", quotesName)
		}
	default:
		for _, s := range sheets {
			if s != orders {
				quotes = s
				break
			}
		}
	}
	if quotes == orders {
		quotes = nil
	}
	return orders, quotes, nil
}

func setupMetrics(backendName string) func() {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "fleet-import",
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			break
		}
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}
	case "", "none":
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
	return func() {}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "fleet-import: "+format+"\n", a...)
	os.Exit(1)
}
