package qjob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/quatton/qfold/pkg/qseq"
	"github.com/spf13/afero"
)

// Mode selects how TFs and motifs are paired into jobs.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeAllPairs Mode = "all_pairs"
	ModePadded   Mode = "padded"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSingle, ModeAllPairs, ModePadded:
		return m, nil
	}
	return "", qerr.Newf(qerr.CodeConfigError, "unknown pairing mode %q (want single, all_pairs or padded)", s)
}

// Entity ids used for every job: protein, motif, reverse complement.
const (
	ProteinID = "A"
	MotifID   = "B"
	RevCompID = "C"
)

// BuildOptions parameterises one batch.
type BuildOptions struct {
	Batch string
	Mode  Mode
	// Padding is the flank width for ModePadded.
	Padding int
	// Seeds overrides the number of model seeds; 0 uses the mode default.
	Seeds int
	// MotifOrder fixes the motif indices of ModeAllPairs. Empty uses the
	// motifs of the record set in table order.
	MotifOrder []string
	// ProteinSource is a prior batch directory whose {tf}/{tf}_data.json
	// protein entities are reused.
	ProteinSource string
}

// Skip reports a TF or job left out of the batch.
type Skip struct {
	TF  string
	Job string
	Err error
}

// PlannedJob is a JobRequest plus the file it is written to.
type PlannedJob struct {
	Request JobRequest
	Path    string
}

// BuildReport is the outcome of a build.
type BuildReport struct {
	Jobs    []PlannedJob
	Skipped []Skip
}

// Builder turns records into job descriptions under a layout.
type Builder struct {
	layout qfs.Layout
	logger *qlog.Logger
}

func NewBuilder(layout qfs.Layout, logger *qlog.Logger) *Builder {
	if logger == nil {
		logger = qlog.Discard()
	}
	return &Builder{layout: layout, logger: logger}
}

// DefaultSeeds returns the seeds for mode: one for exploratory single runs,
// five for comparison batches.
func DefaultSeeds(mode Mode) []int {
	if mode == ModeSingle {
		return seedRange(1)
	}
	return seedRange(5)
}

func seedRange(n int) []int {
	seeds := make([]int, n)
	for i := range seeds {
		seeds[i] = i + 1
	}
	return seeds
}

// Plan computes the jobs of a batch without writing anything and logs every
// excluded TF. records is not modified.
func (b *Builder) Plan(records []Record, opts BuildOptions) (BuildReport, error) {
	if opts.Batch == "" {
		return BuildReport{}, qerr.Newf(qerr.CodeConfigError, "batch name is required")
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return BuildReport{}, err
	}

	seeds := DefaultSeeds(opts.Mode)
	if opts.Seeds > 0 {
		seeds = seedRange(opts.Seeds)
	}

	var report BuildReport
	defer func() {
		logger := b.logger.With("batch", opts.Batch, "mode", string(opts.Mode))
		for _, s := range report.Skipped {
			logger.Warn("excluded from batch", "tf", s.TF, "job", s.Job, "reason", s.Err)
		}
	}()
	seenTF := make(map[string]bool, len(records))
	for _, r := range records {
		if err := checkRecord(r); err != nil {
			report.Skipped = append(report.Skipped, Skip{TF: r.TFName, Err: err})
			continue
		}
		if seenTF[r.TFName] {
			report.Skipped = append(report.Skipped, Skip{TF: r.TFName, Err: qerr.Newf(qerr.CodeConfigError, "duplicate tf %s", r.TFName)})
			continue
		}
		seenTF[r.TFName] = true

		protein, fromData, err := b.proteinFor(r, opts.ProteinSource)
		if err != nil {
			report.Skipped = append(report.Skipped, Skip{TF: r.TFName, Err: err})
			continue
		}

		switch opts.Mode {
		case ModeSingle:
			job, err := b.plan(opts.Batch, r.TFName, protein, fromData, r.Motif, seeds)
			report.add(job, err, r.TFName)
		case ModePadded:
			job, err := b.plan(opts.Batch, r.TFName, protein, fromData, qseq.Pad(r.Motif, opts.Padding), seeds)
			report.add(job, err, r.TFName)
		case ModeAllPairs:
			motifs := opts.MotifOrder
			if len(motifs) == 0 {
				motifs = Motifs(records)
			}
			for i, motif := range motifs {
				name := r.TFName + "_" + strconv.Itoa(i)
				if motif == "" {
					report.Skipped = append(report.Skipped, Skip{TF: r.TFName, Job: name, Err: qerr.Newf(qerr.CodeMissingInput, "motif %d is empty", i)})
					continue
				}
				job, err := b.plan(opts.Batch, name, protein, fromData, motif, seeds)
				report.add(job, err, r.TFName)
			}
		}
	}
	return report, nil
}

func (r *BuildReport) add(job PlannedJob, err error, tf string) {
	if err != nil {
		r.Skipped = append(r.Skipped, Skip{TF: tf, Job: job.Request.Name, Err: err})
		return
	}
	r.Jobs = append(r.Jobs, job)
}

func checkRecord(r Record) error {
	switch {
	case r.TFName == "":
		return qerr.Newf(qerr.CodeMissingInput, "record has no tf name")
	case r.Sequence == "":
		return qerr.Newf(qerr.CodeMissingInput, "tf %s has no protein sequence", r.TFName)
	case r.Motif == "":
		return qerr.Newf(qerr.CodeMissingInput, "tf %s has no motif", r.TFName)
	}
	return nil
}

// proteinFor returns the protein entity of r, reusing the data-pipeline
// entity of a prior batch when one exists, either next to the prior input or
// in the tool's output directory of the prior job.
func (b *Builder) proteinFor(r Record, source string) (SequenceEntity, bool, error) {
	plain := ProteinEntity(ProteinID, r.Sequence)
	if source == "" {
		return plain, false, nil
	}
	for _, rel := range qfs.DataCandidates(r.TFName) {
		path := filepath.Join(source, r.TFName, filepath.FromSlash(rel))
		data, err := afero.ReadFile(b.layout.Fs, path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return SequenceEntity{}, false, fmt.Errorf("reading %s: %w", path, err)
		}
		prior, err := DecodeJobRequest(data)
		if err != nil {
			return SequenceEntity{}, false, fmt.Errorf("%s: %w", path, err)
		}
		if len(prior.Sequences) == 0 || prior.Sequences[0].Protein == nil {
			return SequenceEntity{}, false, qerr.Newf(qerr.CodeParseError, "%s: first entity is not a protein", path)
		}
		return prior.Sequences[0], true, nil
	}
	return plain, false, nil
}

func (b *Builder) plan(batch, name string, protein SequenceEntity, fromData bool, motif string, seeds []int) (PlannedJob, error) {
	req := JobRequest{
		Name:       name,
		ModelSeeds: append([]int(nil), seeds...),
		Sequences: []SequenceEntity{
			protein,
			DNAEntity(MotifID, motif),
			DNAEntity(RevCompID, qseq.ReverseComplement(motif)),
		},
		Dialect:   Dialect,
		Version:   Version,
		OutputDir: b.layout.JobDir(batch, name),
	}
	file := qfs.InputFile(name)
	if fromData {
		file = qfs.DataFile(name)
	}
	job := PlannedJob{Request: req, Path: filepath.Join(req.OutputDir, file)}
	return job, req.Validate()
}

// Build plans the batch and writes one job description per job. A write
// failure skips that job only.
func (b *Builder) Build(records []Record, opts BuildOptions) (BuildReport, error) {
	planned, err := b.Plan(records, opts)
	if err != nil {
		return BuildReport{}, err
	}
	logger := b.logger.With("batch", opts.Batch, "mode", string(opts.Mode))

	report := BuildReport{Skipped: planned.Skipped}
	for _, job := range planned.Jobs {
		if err := qfs.WriteJSON(b.layout.Fs, job.Path, job.Request, "    "); err != nil {
			logger.Error("failed to write job description", "job", job.Request.Name, "error", err)
			report.Skipped = append(report.Skipped, Skip{Job: job.Request.Name, Err: err})
			continue
		}
		logger.Debug("wrote job description", "job", job.Request.Name, "path", job.Path)
		report.Jobs = append(report.Jobs, job)
	}
	logger.Info("batch built", "jobs", len(report.Jobs), "skipped", len(report.Skipped))
	return report, nil
}
