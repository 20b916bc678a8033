package pipeline

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/core"
	"astro-restoration/internal/metrics"
)

// StageOutcome describes what happened to one stage during an Apply
type StageOutcome string

const (
	OutcomeSkipped   StageOutcome = "skipped"
	OutcomeRestored  StageOutcome = "restored"
	OutcomeChanged   StageOutcome = "changed"
	OutcomeUnchanged StageOutcome = "unchanged"
	OutcomeMissing   StageOutcome = "missing"
	OutcomeFailed    StageOutcome = "failed"
)

// StageRecord tracks one stage of one Apply
type StageRecord struct {
	Timestamp time.Time
	Stage     Stage
	Outcome   StageOutcome
	Duration  time.Duration
	Error     string
	Metrics   map[string]float64
}

// RunRecord tracks one Apply call
type RunRecord struct {
	Timestamp time.Time
	Requested []Stage
	Candidate string
	Size      string
	Duration  time.Duration
	Success   bool
	Stages    []StageRecord
}

// Debugger keeps a history of pipeline runs and per-stage timings. A nil
// *Debugger records nothing.
type Debugger struct {
	logger logrus.FieldLogger

	mu         sync.Mutex
	runs       []RunRecord
	current    *RunRecord
	stageTimes map[Stage][]time.Duration
	maxRuns    int
	evaluator  *metrics.Evaluator
}

// NewDebugger keeps at most maxRuns runs, 0 keeps 50
func NewDebugger(logger logrus.FieldLogger, maxRuns int) *Debugger {
	if maxRuns <= 0 {
		maxRuns = 50
	}
	return &Debugger{logger: logger, stageTimes: make(map[Stage][]time.Duration), maxRuns: maxRuns}
}

// WithStageMetrics makes the debugger score every stage that changed the
// image against its input. Each scored stage costs one extra buffer copy.
func (d *Debugger) WithStageMetrics(e *metrics.Evaluator) *Debugger {
	d.evaluator = e
	return d
}

func (d *Debugger) measuring() bool {
	return d != nil && d.evaluator != nil
}

// measure attaches step metrics to the stage's latest record
func (d *Debugger) measure(s Stage, before, after *core.ImageBuffer) {
	if !d.measuring() || before == nil {
		return
	}
	values := d.evaluator.EvaluateStep(before, after, s.String())

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		for i := len(d.current.Stages) - 1; i >= 0; i-- {
			if d.current.Stages[i].Stage == s {
				d.current.Stages[i].Metrics = values
				break
			}
		}
	}
	fields := logrus.Fields{"stage": s.String()}
	for name, v := range values {
		fields[name] = v
	}
	d.logger.WithFields(fields).Debug("PIPELINE: stage metrics")
}

func (d *Debugger) startRun(requested []Stage, candidate Stage, hasCandidate bool, width, height int) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	run := &RunRecord{
		Timestamp: time.Now(),
		Requested: append([]Stage(nil), requested...),
		Size:      sizeString(width, height),
	}
	if hasCandidate {
		run.Candidate = candidate.String()
	}
	d.current = run
	d.logger.WithFields(logrus.Fields{
		"requested": len(requested),
		"candidate": run.Candidate,
		"size":      run.Size,
	}).Debug("PIPELINE: run started")
}

func (d *Debugger) stage(s Stage, outcome StageOutcome, duration time.Duration, err error) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := StageRecord{Timestamp: time.Now(), Stage: s, Outcome: outcome, Duration: duration}
	if err != nil {
		rec.Error = err.Error()
	}
	if d.current != nil {
		d.current.Stages = append(d.current.Stages, rec)
	}
	if outcome == OutcomeChanged || outcome == OutcomeUnchanged {
		d.stageTimes[s] = append(d.stageTimes[s], duration)
	}

	entry := d.logger.WithFields(logrus.Fields{
		"stage":       s.String(),
		"outcome":     string(outcome),
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("PIPELINE: stage failed")
		return
	}
	entry.Debug("PIPELINE: stage")
}

func (d *Debugger) finishRun(success bool) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return
	}
	d.current.Success = success
	d.current.Duration = time.Since(d.current.Timestamp)
	d.runs = append(d.runs, *d.current)
	if len(d.runs) > d.maxRuns {
		d.runs = d.runs[len(d.runs)-d.maxRuns:]
	}
	d.current = nil
}

// Runs returns a copy of the recorded runs, oldest first
func (d *Debugger) Runs() []RunRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RunRecord(nil), d.runs...)
}

// Stats summarises the recorded history
func (d *Debugger) Stats() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := map[string]interface{}{
		"total_runs": len(d.runs),
	}
	successCount := 0
	var total time.Duration
	for _, run := range d.runs {
		if run.Success {
			successCount++
		}
		total += run.Duration
	}
	if len(d.runs) > 0 {
		stats["success_rate"] = float64(successCount) / float64(len(d.runs))
		stats["avg_run_time"] = total / time.Duration(len(d.runs))
	}
	stageAverages := make(map[string]time.Duration, len(d.stageTimes))
	for s, times := range d.stageTimes {
		stageAverages[s.String()] = averageDuration(times)
	}
	stats["avg_stage_time"] = stageAverages
	return stats
}

// LogStatus writes the stats and the last run's stages to the logger
func (d *Debugger) LogStatus() {
	stats := d.Stats()
	d.logger.WithFields(logrus.Fields(stats)).Info("PIPELINE: debug status")
	runs := d.Runs()
	if len(runs) == 0 {
		return
	}
	last := runs[len(runs)-1]
	for _, rec := range last.Stages {
		fields := logrus.Fields{
			"stage":    rec.Stage.String(),
			"outcome":  string(rec.Outcome),
			"duration": rec.Duration,
		}
		for name, v := range rec.Metrics {
			fields[name] = v
		}
		d.logger.WithFields(fields).Info("PIPELINE: last run")
	}
}

func averageDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}
