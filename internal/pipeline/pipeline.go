// Package pipeline orchestrates import runs: schema evolution first, then
// per-row coercion and natural-key upserts, with per-stage outcome tallies.
//
// The pipeline is deliberately sequential. Import volumes are bounded by
// spreadsheet size, and ordered dependency stages plus idempotent upserts
// matter more than throughput. Every row commit is independent and durable;
// a failed row is tallied and the loop moves on.
package pipeline

import (
	"time"

	"fleetimport/internal/loader"
	"fleetimport/internal/metrics"
	"fleetimport/internal/report"
	"fleetimport/internal/storage"
)

// Importer carries the run-wide collaborators every stage needs.
type Importer struct {
	Store storage.Store
	Log   report.Logger
	Run   *report.Run

	// now is a clock seam for tests. Defaults to time.Now.
	now func() time.Time
}

// New constructs an Importer with a fresh run report.
func New(store storage.Store, log report.Logger) *Importer {
	return &Importer{
		Store: store,
		Log:   log,
		Run:   report.NewRun(),
		now:   time.Now,
	}
}

func (imp *Importer) logf(format string, v ...any) {
	if imp.Log != nil {
		imp.Log.Printf(format, v...)
	}
}

func (imp *Importer) clock() time.Time {
	if imp.now != nil {
		return imp.now().UTC()
	}
	return time.Now().UTC()
}

// finishStage records the stage duration metric and logs a progress line.
func (imp *Importer) finishStage(stage string, started time.Time, rows int) {
	dur := time.Since(started)
	metrics.RecordStageDuration(stage, dur.Seconds())
	imp.logf("stage=%s rows=%d duration=%s", stage, rows, dur.Truncate(time.Millisecond))
}

// outcome tallies one row result in both the report and the metrics backend.
func outcome(st *report.Stage, kind, skipReason string) {
	switch kind {
	case "created":
		st.AddCreated()
	case "updated":
		st.AddUpdated()
	case "skipped":
		st.AddSkipped(skipReason)
	case "errored":
		st.AddErrored()
	}
	metrics.RecordRow(st.Name, kind)
}

// rowsAsMaps exposes sheet rows to the probe without copying cells.
func rowsAsMaps(rows []loader.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}
