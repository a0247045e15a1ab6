package qart

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/quatton/qfold/pkg/qparse"
	"github.com/quatton/qfold/pkg/qsubmit"
)

// IsJobArtifact reports whether a file of job is archived: scheduler logs,
// batch scripts, submission markers and the tool's summaries.
func IsJobArtifact(job, name string) bool {
	if qparse.IsSchedulerLog(name) || strings.HasSuffix(name, qfs.SummarySuffix) {
		return true
	}
	for _, st := range qsubmit.Stages {
		if name == qsubmit.MarkerFile(st) || name == qsubmit.ScriptFile(st) {
			return true
		}
	}
	return name == qfs.InputFile(job) || name == qfs.DataFile(job)
}

// ContentType guesses the content type of an archived file.
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".sh":
		return "text/x-shellscript"
	case ".tsv":
		return "text/tab-separated-values"
	}
	return "text/plain"
}

// Archiver uploads the artifacts of a batch.
type Archiver struct {
	layout qfs.Layout
	store  Store
	logger *qlog.Logger
}

func NewArchiver(layout qfs.Layout, store Store, logger *qlog.Logger) *Archiver {
	if logger == nil {
		logger = qlog.Discard()
	}
	return &Archiver{layout: layout, store: store, logger: logger}
}

// ArchiveBatch uploads the artifacts of every job of batch, including files
// one level down in the tool's output directory. It stops at the first
// upload error.
func (a *Archiver) ArchiveBatch(ctx context.Context, batch string) ([]*Artifact, error) {
	jobs, err := qfs.ListDirs(a.layout.Fs, a.layout.BatchDir(batch))
	if err != nil {
		return nil, err
	}
	var uploaded []*Artifact
	for _, job := range jobs {
		dir := a.layout.JobDir(batch, job)
		files, err := a.jobFiles(dir, job)
		if err != nil {
			return uploaded, err
		}
		for _, rel := range files {
			art, err := a.upload(ctx, filepath.Join(dir, rel), BatchArtifactKey(batch, job, filepath.ToSlash(rel)), batch, job)
			if err != nil {
				return uploaded, err
			}
			uploaded = append(uploaded, art)
		}
	}
	a.logger.Info("batch archived", "batch", batch, "artifacts", len(uploaded))
	return uploaded, nil
}

// ArchiveFile uploads a batch-level file, such as a report.
func (a *Archiver) ArchiveFile(ctx context.Context, batch, path string) (*Artifact, error) {
	return a.upload(ctx, path, BatchArtifactKey(batch, "", filepath.Base(path)), batch, "")
}

func (a *Archiver) jobFiles(dir, job string) ([]string, error) {
	entries, err := qfs.List(a.layout.Fs, dir)
	if err != nil {
		return nil, err
	}
	outputDirs := qfs.OutputDirNames(job)
	var files []string
	for _, e := range entries {
		if !e.Dir {
			if IsJobArtifact(job, e.Name) {
				files = append(files, e.Name)
			}
			continue
		}
		if !slices.Contains(outputDirs, e.Name) {
			continue
		}
		sub, err := qfs.List(a.layout.Fs, filepath.Join(dir, e.Name))
		if err != nil {
			return nil, err
		}
		for _, s := range sub {
			if !s.Dir && strings.HasSuffix(s.Name, qfs.SummarySuffix) {
				files = append(files, filepath.Join(e.Name, s.Name))
			}
		}
	}
	return files, nil
}

func (a *Archiver) upload(ctx context.Context, path, key, batch, job string) (*Artifact, error) {
	f, err := a.layout.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	meta := map[string]string{"batch": batch}
	if job != "" {
		meta["job"] = job
	}
	art, err := a.store.Upload(ctx, key, f, size, ContentType(path), meta)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	a.logger.Debug("uploaded", "key", key, "size", art.Size)
	return art, nil
}
