// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers points in memory, submits them on a periodic ticker,
// and flushes one final time on Close. Short import runs get their tail
// flush at shutdown; long multi-sheet runs produce an actual time series.
//
// Concurrency model:
//   - pipeline goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, then submits
//     out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"fleetimport/internal/metrics"
)

// Options controls backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "fleetimport".
	JobName string

	// Tags are extra Datadog tags, e.g. []string{"env:prod"}.
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// Defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; tests use
	// them to avoid real submission and nondeterministic tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend
// needs. The SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP; depending on this interface keeps tests
// deterministic.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// rowCounts is keyed "stage|outcome".
	rowCounts map[string]float64
	// stageDurations is keyed by stage.
	stageDurations map[string][]float64
}

// NewBackend constructs a Datadog backend using the official client and
// starts its periodic flush goroutine.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "fleetimport"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		rowCounts:      make(map[string]float64),
		stageDurations: make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// ParseTagsCSV splits a comma-separated tag list ("env:prod,team:fleet")
// into a tag slice, dropping empty entries.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.RowsTotal:
		stage := labels["stage"]
		outcome := labels["outcome"]
		if stage == "" || outcome == "" {
			return
		}
		b.rowCounts[stage+"|"+outcome] += delta
	default:
		// Unknown counters are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StageDurationSecs:
		stage := labels["stage"]
		if stage == "" {
			return
		}
		b.stageDurations[stage] = append(b.stageDurations[stage], value)
	default:
	}
}

type snapshot struct {
	rowCounts      map[string]float64
	stageDurations map[string][]float64
}

// snapshotAndReset detaches the current buffers so payload building and
// submission happen out of the lock.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		rowCounts:      b.rowCounts,
		stageDurations: b.stageDurations,
	}
	b.rowCounts = make(map[string]float64)
	b.stageDurations = make(map[string][]float64)
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.rowCounts) == 0 && len(s.stageDurations) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset
// even when submission fails so the importer never blocks on metrics.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs the Datadog series for a snapshot at a fixed
// timestamp. Pure: no locks, no network, no clocks.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.rowCounts)+len(s.stageDurations)*4)

	for k, v := range s.rowCounts {
		if v == 0 {
			continue
		}
		stage, outcome, _ := strings.Cut(k, "|")
		tags := withTags(b.baseTags, "stage:"+stage, "outcome:"+outcome)
		series = append(series, countSeries("fleetimport.rows.total", v, tags, nowUnix))
	}

	for stage, samples := range s.stageDurations {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		tags := withTags(b.baseTags, "stage:"+stage)

		prefix := "fleetimport.stage.duration_seconds"
		series = append(series,
			gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
			gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
			gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix),
			gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix),
		)
	}

	return series
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// percentileNearestRank returns the nearest-rank percentile of sorted
// samples. p is in (0, 1].
func percentileNearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted)) + 0.9999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
