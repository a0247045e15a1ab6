package qsubmit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quatton/qfold/pkg/qconf"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/quatton/qfold/pkg/qscript"
)

// Marker records an accepted submission in the job directory.
type Marker struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	Stage       Stage     `json:"stage"`
	Backend     string    `json:"backend"`
	SchedulerID string    `json:"scheduler_id"`
	Script      string    `json:"script"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Options parameterises one submission pass.
type Options struct {
	Stage Stage
	// Overrides are applied after the stage overrides, so they win.
	Overrides []qconf.Override
	// DryRun renders and writes scripts but submits nothing.
	DryRun bool
	// Jobs restricts the pass to these job names. Empty means every job.
	Jobs []string
}

// Outcome is what happened to one job.
type Outcome struct {
	Job    string
	State  State
	Reason string
	// Script is the path of the rendered script, if one was written.
	Script    string
	Submitted bool
	Marker    *Marker
	Err       error
}

// PassReport lists the outcome of every job in listing order.
type PassReport struct {
	Batch    string
	Stage    Stage
	DryRun   bool
	Outcomes []Outcome
}

// Count returns how many outcomes are in state s.
func (r PassReport) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Submitted returns the number of jobs handed to the backend.
func (r PassReport) Submitted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Submitted {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that carry an error.
func (r PassReport) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Controller runs idempotent submission passes over a batch.
type Controller struct {
	layout    qfs.Layout
	base      *qconf.Base
	submitter Submitter
	logger    *qlog.Logger
	now       func() time.Time
}

func NewController(layout qfs.Layout, base *qconf.Base, submitter Submitter, logger *qlog.Logger) *Controller {
	if logger == nil {
		logger = qlog.Discard()
	}
	return &Controller{
		layout:    layout,
		base:      base,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
	}
}

// Run classifies every job of batch and submits the ready ones. Jobs are
// independent: a failing job is recorded in the report and the pass goes on.
// Running the pass again never resubmits a job the backend accepted.
func (c *Controller) Run(ctx context.Context, batch string, opts Options) (PassReport, error) {
	if _, err := ParseStage(string(opts.Stage)); err != nil {
		return PassReport{}, err
	}
	batchDir := c.layout.BatchDir(batch)
	jobs, err := qfs.ListDirs(c.layout.Fs, batchDir)
	if err != nil {
		return PassReport{}, err
	}
	if len(opts.Jobs) > 0 {
		jobs = filterJobs(jobs, opts.Jobs)
	}

	logger := c.logger.With("batch", batch, "stage", string(opts.Stage))
	report := PassReport{Batch: batch, Stage: opts.Stage, DryRun: opts.DryRun}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o := c.runJob(ctx, batch, job, opts)
		switch {
		case o.Err != nil:
			logger.Error("job failed", "job", job, "error", o.Err)
		case o.State == StateReady && o.Submitted:
			logger.Info("submitted", "job", job, "backend", o.Marker.Backend, "scheduler_id", o.Marker.SchedulerID)
		case o.State == StateReady:
			logger.Info("rendered (dry run)", "job", job, "script", o.Script)
		default:
			logger.Debug("skipped", "job", job, "state", o.State.String(), "reason", o.Reason)
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	logger.Info("submission pass complete",
		"jobs", len(report.Outcomes),
		"submitted", report.Submitted(),
		"already_submitted", report.Count(StateAlreadySubmitted),
		"not_ready", report.Count(StateNotReady),
		"failed", len(report.Failed()),
	)
	return report, nil
}

func (c *Controller) runJob(ctx context.Context, batch, job string, opts Options) Outcome {
	jobDir := c.layout.JobDir(batch, job)
	entries, err := qfs.ListJob(c.layout.Fs, jobDir, job)
	if err != nil {
		return Outcome{Job: job, Err: err}
	}
	state, reason := Classify(opts.Stage, job, entries)
	out := Outcome{Job: job, State: state, Reason: reason}
	if state != StateReady {
		return out
	}

	input, _ := Input(opts.Stage, job, entries)
	cfg := c.base.Resolve(append(StageOverrides(opts.Stage, jobDir, input), opts.Overrides...)...)
	script, err := qscript.Render(cfg)
	if err != nil {
		out.Err = fmt.Errorf("%s: %w", job, err)
		return out
	}
	out.Script = filepath.Join(jobDir, ScriptFile(opts.Stage))
	if err := qfs.WriteFile(c.layout.Fs, out.Script, []byte(script)); err != nil {
		out.Err = err
		return out
	}
	if opts.DryRun {
		return out
	}

	sub, err := c.submitter.Submit(ctx, Request{
		Job:        job,
		Stage:      opts.Stage,
		JobDir:     jobDir,
		ScriptPath: out.Script,
		Script:     script,
		Config:     cfg,
	})
	if err != nil {
		if qerr.CodeOf(err) == qerr.CodeUnknown {
			err = submissionError(c.submitter.Name(), job, err)
		}
		out.Err = err
		return out
	}
	out.Submitted = true

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	out.Marker = &Marker{
		ID:          id.String(),
		Job:         job,
		Stage:       opts.Stage,
		Backend:     sub.Backend,
		SchedulerID: sub.SchedulerID,
		Script:      out.Script,
		SubmittedAt: c.now().UTC(),
	}
	if err := qfs.WriteJSON(c.layout.Fs, filepath.Join(jobDir, MarkerFile(opts.Stage)), out.Marker, "  "); err != nil {
		out.Err = fmt.Errorf("%s was submitted as %s but the marker could not be written: %w", job, sub.SchedulerID, err)
	}
	return out
}

// StageOverrides are the per-job keys of a stage: the working directory, the
// phase, the input description and whether the data pipeline still runs.
func StageOverrides(stage Stage, jobDir, input string) []qconf.Override {
	overrides := []qconf.Override{
		qconf.Set(qconf.KeyWorkingDirectory, jobDir),
		qconf.Set(qconf.KeyInputJSON, filepath.Join(jobDir, input)),
	}
	fromData := strings.HasSuffix(input, qfs.DataSuffix)
	switch stage {
	case StageData:
		overrides = append(overrides,
			qconf.Set(qconf.KeyPhase, qconf.PhaseCPU),
			qconf.Set(qconf.KeyRunDataPipeline, true),
		)
	default:
		overrides = append(overrides,
			qconf.Set(qconf.KeyPhase, qconf.PhaseGPU),
			qconf.Set(qconf.KeyRunDataPipeline, !fromData),
		)
	}
	return overrides
}

func filterJobs(jobs, keep []string) []string {
	want := make(map[string]bool, len(keep))
	for _, j := range keep {
		want[j] = true
	}
	var out []string
	for _, j := range jobs {
		if want[j] {
			out = append(out, j)
		}
	}
	return out
}
