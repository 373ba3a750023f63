// Package report accumulates per-stage row outcomes for an import run and
// renders the end-of-run summary.
package report

import (
	"sort"
	"time"
)

// Logger is the minimal logging interface used across the importer.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Stage counts row outcomes for one import stage. Not safe for concurrent
// use; each stage runs on a single goroutine.
type Stage struct {
	Name string

	Created int
	Updated int
	Skipped int
	Errored int

	skipReasons map[string]int
}

func (s *Stage) AddCreated() { s.Created++ }
func (s *Stage) AddUpdated() { s.Updated++ }
func (s *Stage) AddErrored() { s.Errored++ }

// AddSkipped counts a skipped row under a short reason label such as
// "missing_key" or "duplicate".
func (s *Stage) AddSkipped(reason string) {
	s.Skipped++
	if s.skipReasons == nil {
		s.skipReasons = map[string]int{}
	}
	s.skipReasons[reason]++
}

// SkipReasons returns the skip reason labels seen so far, sorted.
func (s *Stage) SkipReasons() []string {
	out := make([]string, 0, len(s.skipReasons))
	for r := range s.skipReasons {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Run is the whole-import report: an ordered list of stages plus wall time.
type Run struct {
	startedAt time.Time
	stages    []*Stage
	byName    map[string]*Stage
}

func NewRun() *Run {
	return &Run{
		startedAt: time.Now(),
		byName:    map[string]*Stage{},
	}
}

// Stage returns the named stage, creating it on first use. Stages keep the
// order they were first seen in.
func (r *Run) Stage(name string) *Stage {
	if s, ok := r.byName[name]; ok {
		return s
	}
	s := &Stage{Name: name}
	r.byName[name] = s
	r.stages = append(r.stages, s)
	return s
}

// Stages returns the stages in first-seen order.
func (r *Run) Stages() []*Stage {
	return r.stages
}

// Errored returns the total errored rows across all stages. The process exit
// code pivots on this.
func (r *Run) Errored() int {
	total := 0
	for _, s := range r.stages {
		total += s.Errored
	}
	return total
}

// Summarize prints one line per stage plus a run total.
func (r *Run) Summarize(logf Logger) {
	for _, s := range r.stages {
		logf.Printf("stage=%s created=%d updated=%d skipped=%d errored=%d",
			s.Name, s.Created, s.Updated, s.Skipped, s.Errored)
		for _, reason := range s.SkipReasons() {
			logf.Printf("stage=%s skip_reason=%s count=%d", s.Name, reason, s.skipReasons[reason])
		}
	}
	logf.Printf("run duration=%s errored=%d",
		time.Since(r.startedAt).Truncate(time.Millisecond), r.Errored())
}
