// Command reefer-import imports a container master sheet (CSV or XLSX) into
// the fleet database, evolving the target table's schema additively and
// upserting one record per container code.
//
// Usage:
//
//	reefer-import [flags] [file]
//
// The positional file argument defaults to the vendor's standard export
// name. Exit code is 0 when every row imported cleanly and 1 when any row
// errored; skipped rows do not fail the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
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

const defaultFile = "Reefer Container master.csv"

func main() {
	var (
		backendFlg string
		dsnFlg     string
		tableFlg   string
		metricsFlg string
	)

	flag.StringVar(&backendFlg, "backend", "postgres", "storage backend kind (postgres, sqlite, mssql)")
	flag.StringVar(&dsnFlg, "dsn", "", "database DSN (overrides env DATABASE_URL)")
	flag.StringVar(&tableFlg, "table", "reefer_master", "target table name")
	flag.StringVar(&metricsFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	// Local .env files carry DATABASE_URL and Datadog keys in dev.
	_ = godotenv.Load()

	path := defaultFile
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	dsn := dsnFlg
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		fatalf("no DSN: pass -dsn or set DATABASE_URL")
	}

	stopMetrics := setupMetrics(metricsFlg, *verbose)

	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{Kind: backendFlg, DSN: dsn})
	if err != nil {
		fatalf("open storage: %v", err)
	}
	defer store.Close()

	sheet, err := loader.LoadFile(path)
	if err != nil {
		fatalf("load %s: %v", path, err)
	}
	log.Printf("loaded file=%s sheet=%s rows=%d", path, sheet.Name, len(sheet.Rows))

	imp := pipeline.New(store, log.Default())
	if err := imp.ImportMaster(ctx, sheet, tableFlg); err != nil {
		fatalf("import: %v", err)
	}

	imp.Run.Summarize(log.Default())
	stopMetrics()
	if imp.Run.Errored() > 0 {
		os.Exit(1)
	}
}

// setupMetrics wires the optional metrics backend: flag, then env, then
// disabled. A backend init failure downgrades to the nop backend rather
// than blocking the import. The returned func stops the backend and flushes
// any buffered points; call it before exiting.
func setupMetrics(backendName string, verbose bool) func() {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "reefer-import",
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
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
	return func() {}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "reefer-import: "+format+"\n", a...)
	os.Exit(1)
}
