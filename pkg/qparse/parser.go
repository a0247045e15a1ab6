package qparse

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
)

// Order decides which log wins when several classify to the same phase:
// the later one in the order.
type Order string

const (
	// OrderListing keeps the directory listing (name) order.
	OrderListing Order = "listing"
	// OrderMTime sorts by modification time, ties by name.
	OrderMTime Order = "mtime"
)

func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case OrderListing, OrderMTime:
		return o, nil
	case "":
		return OrderListing, nil
	}
	return "", qerr.Newf(qerr.CodeConfigError, "unknown log order %q (want listing or mtime)", s)
}

// PhaseUsage is the usage of one phase of a job.
type PhaseUsage struct {
	Phase          Phase  `json:"phase"`
	SchedulerJobID string `json:"scheduler_job_id"`
	LogFile        string `json:"log_file"`
	Usage
}

// LogError is a failure tied to one log file.
type LogError struct {
	Log string
	Err error
}

func (e LogError) Error() string { return fmt.Sprintf("%s: %v", e.Log, e.Err) }
func (e LogError) Unwrap() error { return e.Err }

// JobMetrics is everything known about one job.
type JobMetrics struct {
	Job        string               `json:"job"`
	Phases     map[Phase]PhaseUsage `json:"phases,omitempty"`
	Confidence *Confidence          `json:"confidence,omitempty"`
	Errors     []error              `json:"-"`
}

// Usage returns the usage recorded for phase.
func (m JobMetrics) Usage(phase Phase) (PhaseUsage, bool) {
	u, ok := m.Phases[phase]
	return u, ok
}

// IPTM returns the interface score if the summary carries one.
func (m JobMetrics) IPTM() (float64, bool) {
	if m.Confidence == nil || m.Confidence.IPTM == nil {
		return 0, false
	}
	return *m.Confidence.IPTM, true
}

// BatchMetrics are the metrics of every job of a batch, in listing order.
type BatchMetrics struct {
	Batch string       `json:"batch"`
	Jobs  []JobMetrics `json:"jobs"`
}

// IPTMScores maps job names to interface scores, skipping jobs without one.
func (b BatchMetrics) IPTMScores() map[string]float64 {
	scores := make(map[string]float64)
	for _, j := range b.Jobs {
		if v, ok := j.IPTM(); ok {
			scores[j.Job] = v
		}
	}
	return scores
}

// Errors returns every per-job error of the batch.
func (b BatchMetrics) Errors() []error {
	var errs []error
	for _, j := range b.Jobs {
		for _, err := range j.Errors {
			errs = append(errs, fmt.Errorf("%s: %w", j.Job, err))
		}
	}
	return errs
}

// Parser reads job directories under a layout.
type Parser struct {
	layout     qfs.Layout
	accountant Accountant
	order      Order
	logger     *qlog.Logger
}

func NewParser(layout qfs.Layout, accountant Accountant, order Order, logger *qlog.Logger) *Parser {
	if order == "" {
		order = OrderListing
	}
	if logger == nil {
		logger = qlog.Discard()
	}
	return &Parser{layout: layout, accountant: accountant, order: order, logger: logger}
}

// ParseBatch parses every job of batch. Failures are collected per job; jobs
// still in flight simply have fewer metrics.
func (p *Parser) ParseBatch(ctx context.Context, batch string) (BatchMetrics, error) {
	jobs, err := qfs.ListDirs(p.layout.Fs, p.layout.BatchDir(batch))
	if err != nil {
		return BatchMetrics{}, err
	}
	out := BatchMetrics{Batch: batch, Jobs: make([]JobMetrics, 0, len(jobs))}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m := p.ParseJob(ctx, batch, job)
		for _, err := range m.Errors {
			p.logger.Warn("could not parse", "batch", batch, "job", job, "error", err)
		}
		out.Jobs = append(out.Jobs, m)
	}
	p.logger.Info("batch parsed", "batch", batch, "jobs", len(out.Jobs), "scored", len(out.IPTMScores()))
	return out, nil
}

// ParseJob parses the scheduler logs and the confidence summary of one job.
func (p *Parser) ParseJob(ctx context.Context, batch, job string) JobMetrics {
	dir := p.layout.JobDir(batch, job)
	m := JobMetrics{Job: job, Phases: map[Phase]PhaseUsage{}}

	entries, err := qfs.List(p.layout.Fs, dir)
	if err != nil {
		m.Errors = append(m.Errors, err)
		return m
	}
	for _, e := range p.schedulerLogs(entries) {
		usage, ok, err := p.parseLog(ctx, dir, e.Name)
		if err != nil {
			m.Errors = append(m.Errors, LogError{Log: e.Name, Err: err})
			if prev, kept := m.Phases[usage.Phase]; kept {
				p.logger.Warn("later log has no usable accounting, keeping the earlier one",
					"job", job, "phase", usage.Phase, "log", e.Name, "kept", prev.LogFile)
			}
			continue
		}
		if ok {
			m.Phases[usage.Phase] = usage
		}
	}

	conf, err := ReadConfidence(p.layout.Fs, dir, job)
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
	m.Confidence = conf
	return m
}

func (p *Parser) schedulerLogs(entries []qfs.Entry) []qfs.Entry {
	var logs []qfs.Entry
	for _, e := range entries {
		if !e.Dir && IsSchedulerLog(e.Name) {
			logs = append(logs, e)
		}
	}
	if p.order == OrderMTime {
		sort.SliceStable(logs, func(i, j int) bool {
			if !logs[i].ModTime.Equal(logs[j].ModTime) {
				return logs[i].ModTime.Before(logs[j].ModTime)
			}
			return logs[i].Name < logs[j].Name
		})
	}
	return logs
}

// parseLog returns ok=false for logs that carry no usable phase. On errors
// after classification the returned usage still names the phase.
func (p *Parser) parseLog(ctx context.Context, dir, name string) (PhaseUsage, bool, error) {
	f, err := p.layout.Fs.Open(filepath.Join(dir, name))
	if err != nil {
		return PhaseUsage{}, false, err
	}
	phase, err := ClassifyPhase(f)
	f.Close()
	if err != nil {
		return PhaseUsage{}, false, err
	}
	if phase == PhaseUnknown {
		p.logger.Debug("log has no phase marker", "log", name)
		return PhaseUsage{}, false, nil
	}
	if IsLocalLog(name) {
		p.logger.Debug("local run has no accounting", "log", name)
		return PhaseUsage{}, false, nil
	}

	failed := PhaseUsage{Phase: phase, LogFile: name}
	id, ok := SchedulerJobID(name)
	if !ok {
		return failed, false, qerr.Newf(qerr.CodeParseError, "no scheduler job id in log name")
	}
	report, err := p.accountant.Report(ctx, id)
	if err != nil {
		return failed, false, err
	}
	usage, err := ParseAccounting(report)
	if err != nil {
		return failed, false, err
	}
	return PhaseUsage{Phase: phase, SchedulerJobID: id, LogFile: name, Usage: usage}, true, nil
}
