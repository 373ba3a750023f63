// Package metrics is the thin instrumentation facade the importer records
// into. The core pipeline depends only on this package; concrete backends
// (Datadog) register themselves via SetBackend. The default backend is a
// no-op so library code can instrument unconditionally.
package metrics

import "sync"

// Labels are the tag key/values attached to a metric point.
type Labels map[string]string

// Backend is implemented by metric sinks.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide sink. Call once during startup,
// before the pipeline runs.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

func Flush() error {
	return current().Flush()
}

// Metric names used by the importer.
const (
	RowsTotal         = "import_rows_total"
	StageDurationSecs = "import_stage_duration_seconds"
)

// RecordRow counts one row outcome ("created", "updated", "skipped",
// "errored") for a stage.
func RecordRow(stage, outcome string) {
	IncCounter(RowsTotal, 1, Labels{"stage": stage, "outcome": outcome})
}

// RecordStageDuration records how long one stage took.
func RecordStageDuration(stage string, seconds float64) {
	ObserveHistogram(StageDurationSecs, seconds, Labels{"stage": stage})
}
