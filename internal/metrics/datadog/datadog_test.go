package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"fleetimport/internal/metrics"
)

// fakeSubmitter records submitted payloads instead of doing HTTP.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) all() []datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datadogV2.MetricPayload(nil), f.payloads...)
}

func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()

	fake := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName: "test-import",
		// Long interval so only explicit Flush/Close submit.
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  fake,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b, fake
}

func TestFlushSubmitsRowCounts(t *testing.T) {
	b, fake := newTestBackend(t)
	defer b.Close()

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"stage": "master", "outcome": "created"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"stage": "master", "outcome": "created"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"stage": "master", "outcome": "skipped"})
	// Missing labels are dropped.
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"stage": "master"})
	// Unknown metric names are ignored.
	b.IncCounter("something_else", 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payloads := fake.all()
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	series := payloads[0].Series
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2: %+v", len(series), series)
	}

	byTag := map[string]float64{}
	for _, s := range series {
		if s.Metric != "fleetimport.rows.total" {
			t.Fatalf("unexpected metric %q", s.Metric)
		}
		key := strings.Join(s.Tags, ",")
		byTag[key] = *s.Points[0].Value
		if !strings.Contains(key, "job:test-import") {
			t.Fatalf("series missing job tag: %v", s.Tags)
		}
	}
	found := 0
	for key, v := range byTag {
		if strings.Contains(key, "outcome:created") && v == 2 {
			found++
		}
		if strings.Contains(key, "outcome:skipped") && v == 1 {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("row counts wrong: %v", byTag)
	}
}

func TestFlushResetsBuffers(t *testing.T) {
	b, fake := newTestBackend(t)
	defer b.Close()

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"stage": "master", "outcome": "created"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Nothing buffered now; a second flush must not submit.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if got := len(fake.all()); got != 1 {
		t.Fatalf("got %d payloads, want 1", got)
	}
}

func TestStageDurationPercentiles(t *testing.T) {
	b, fake := newTestBackend(t)
	defer b.Close()

	for _, v := range []float64{0.1, 0.2, 0.3, 0.4, 10} {
		b.ObserveHistogram(metrics.StageDurationSecs, v, metrics.Labels{"stage": "master"})
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	series := fake.all()[0].Series
	got := map[string]float64{}
	for _, s := range series {
		got[s.Metric] = *s.Points[0].Value
	}
	if got["fleetimport.stage.duration_seconds.max"] != 10 {
		t.Fatalf("max = %v", got["fleetimport.stage.duration_seconds.max"])
	}
	if got["fleetimport.stage.duration_seconds.samples"] != 5 {
		t.Fatalf("samples = %v", got["fleetimport.stage.duration_seconds.samples"])
	}
	if got["fleetimport.stage.duration_seconds.p50"] != 0.3 {
		t.Fatalf("p50 = %v", got["fleetimport.stage.duration_seconds.p50"])
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	samples := []float64{5, 1, 3, 2, 4}
	sort.Float64s(samples)

	tests := []struct {
		p    float64
		want float64
	}{
		{0.50, 3},
		{0.95, 5},
		{1.0, 5},
	}
	for _, tt := range tests {
		if got := percentileNearestRank(samples, tt.p); got != tt.want {
			t.Fatalf("percentileNearestRank(p=%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty samples = %v, want 0", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	got := ParseTagsCSV(" env:prod , ,team:fleet,")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "team:fleet" {
		t.Fatalf("ParseTagsCSV = %v", got)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Fatalf("ParseTagsCSV(\"\") = %v, want nil", got)
	}
}
