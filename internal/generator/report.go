package generator

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Signal severities, highest first.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

var severityRank = map[string]int{
	SeverityCritical: 3,
	SeverityWarning:  2,
	SeverityInfo:     1,
}

// ReportFile is the name SaveDir writes.
const ReportFile = "stubgen_report.json"

// ReportSignal is one finding raised while a job ran.
type ReportSignal struct {
	Job      string `json:"job,omitempty"`
	Stage    string `json:"stage"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// StageMetric times one pipeline stage of one job.
type StageMetric struct {
	Job      string             `json:"job"`
	Stage    string             `json:"stage"`
	Status   string             `json:"status"`
	Start    time.Time          `json:"start"`
	Elapsed  float64            `json:"elapsed_ms"`
	Counters map[string]float64 `json:"counters,omitempty"`
	Notes    []string           `json:"notes,omitempty"`
	Err      string             `json:"err,omitempty"`
}

// JobMetric summarizes one job's reconciliation.
type JobMetric struct {
	Job              string   `json:"job"`
	Output           string   `json:"output"`
	Expected         int      `json:"expected"`
	Satisfied        int      `json:"satisfied"`
	Forwarded        int      `json:"forwarded"`
	Stubbed          int      `json:"stubbed"`
	Demoted          int      `json:"demoted"`
	Derived          int      `json:"derived"`
	WithoutSignature int      `json:"without_signature"`
	Normalized       int      `json:"normalized"`
	Unverified       []string `json:"unverified,omitempty"`
	Bytes            int      `json:"bytes"`
	Written          bool     `json:"written"`
}

type ReportSummary struct {
	StageCount        int            `json:"stage_count"`
	JobCount          int            `json:"job_count"`
	FailedStages      int            `json:"failed_stages"`
	Satisfied         int            `json:"satisfied"`
	Forwarded         int            `json:"forwarded"`
	Stubbed           int            `json:"stubbed"`
	Emitted           int            `json:"emitted"`
	Unverified        int            `json:"unverified"`
	SignalsBySeverity map[string]int `json:"signals_by_severity"`
	SignalsByCode     map[string]int `json:"signals_by_code,omitempty"`
}

// RunReport is the optional JSON account of a generate run. A nil *RunReport
// accepts every call and records nothing.
type RunReport struct {
	Version     string         `json:"version"`
	Mode        string         `json:"mode"`
	GeneratedAt time.Time      `json:"generated_at"`
	Root        string         `json:"root"`
	Stages      []StageMetric  `json:"stages"`
	Jobs        []JobMetric    `json:"jobs,omitempty"`
	Signals     []ReportSignal `json:"signals,omitempty"`
	Summary     ReportSummary  `json:"summary"`
}

// StageHandle marks an open stage until EndStage records it.
type StageHandle struct {
	job, stage string
	at         time.Time
}

func NewRunReport(mode, root string) *RunReport {
	return &RunReport{
		Version: "v1",
		Mode:    mode,
		Root:    root,
		Stages:  []StageMetric{},
		Jobs:    []JobMetric{},
		Signals: []ReportSignal{},
	}
}

func (r *RunReport) BeginStage(job, name string) StageHandle {
	return StageHandle{job: job, stage: strings.TrimSpace(name), at: time.Now().UTC()}
}

// EndStage records the stage begun with h. An empty status means "ok"; a non-nil
// err turns an "ok" status into "error".
func (r *RunReport) EndStage(h StageHandle, status string, counters map[string]float64, notes []string, err error) {
	if r == nil || h.stage == "" {
		return
	}
	switch status = strings.TrimSpace(status); {
	case status == "" && err == nil:
		status = "ok"
	case err != nil && (status == "" || status == "ok"):
		status = "error"
	}

	stage := StageMetric{
		Job:     h.job,
		Stage:   h.stage,
		Status:  status,
		Start:   h.at,
		Elapsed: float64(time.Since(h.at).Microseconds()) / 1000,
		Notes:   compact(notes...),
	}
	for k, v := range counters {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		if stage.Counters == nil {
			stage.Counters = make(map[string]float64, len(counters))
		}
		stage.Counters[k] = v
	}
	if err != nil {
		stage.Err = err.Error()
	}
	r.Stages = append(r.Stages, stage)
}

// AddSignal records a finding for job. Signals missing a stage, code,
// severity or message are dropped.
func (r *RunReport) AddSignal(job, stage, code, severity, message string) {
	if r == nil {
		return
	}
	fields := compact(stage, code, severity, message)
	if len(fields) != 4 {
		return
	}
	r.Signals = append(r.Signals, ReportSignal{
		Job:      strings.TrimSpace(job),
		Stage:    fields[0],
		Code:     fields[1],
		Severity: strings.ToLower(fields[2]),
		Message:  fields[3],
	})
}

func (r *RunReport) AddJobMetric(m JobMetric) {
	if r == nil || len(compact(m.Job)) == 0 {
		return
	}
	r.Jobs = append(r.Jobs, m)
}

// Finalize orders signals by severity, then stage and code, and fills the summary.
func (r *RunReport) Finalize() {
	if r == nil {
		return
	}
	r.GeneratedAt = time.Now().UTC()

	sort.SliceStable(r.Signals, func(i, j int) bool {
		a, b := r.Signals[i], r.Signals[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] > severityRank[b.Severity]
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		return a.Code < b.Code
	})

	sum := ReportSummary{
		StageCount: len(r.Stages),
		JobCount:   len(r.Jobs),
		SignalsBySeverity: map[string]int{
			SeverityCritical: 0,
			SeverityWarning:  0,
			SeverityInfo:     0,
		},
	}
	for _, sig := range r.Signals {
		sum.SignalsBySeverity[sig.Severity]++
		if sum.SignalsByCode == nil {
			sum.SignalsByCode = make(map[string]int)
		}
		sum.SignalsByCode[sig.Code]++
	}
	for i := range r.Stages {
		if r.Stages[i].Status != "ok" {
			sum.FailedStages++
		}
	}
	for _, j := range r.Jobs {
		sum.Satisfied += j.Satisfied
		sum.Forwarded += j.Forwarded
		sum.Stubbed += j.Stubbed
		sum.Unverified += len(j.Unverified)
	}
	sum.Emitted = sum.Forwarded + sum.Stubbed
	r.Summary = sum
}

// Save finalizes the report and writes it atomically as indented JSON.
func (r *RunReport) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	out, err := json.MarshalIndent(r, "", "\t")
	if err == nil {
		err = WriteFile(path, append(out, '\n'))
	}
	return err
}

// SaveDir writes ReportFile inside dir and returns its path.
func (r *RunReport) SaveDir(dir string) (string, error) {
	path := filepath.Join(dir, ReportFile)
	return path, r.Save(path)
}

// compact trims every value and drops the blank ones.
func compact(values ...string) []string {
	kept := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return kept
}
