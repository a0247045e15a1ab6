// Package qfs describes the on-disk layout of a batch,
//
//	{jobs_root}/{batch}/{job}/
//
// and the directory listing abstraction the submission and parsing passes
// reason over. Everything goes through an afero.Fs so that the passes can run
// against an in-memory filesystem.
package qfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// InputSuffix names the plain job description written by the builder.
	InputSuffix = ".json"
	// DataSuffix names the job description after the data pipeline attached
	// alignment and template data.
	DataSuffix = "_data.json"
	// SummarySuffix names the tool's confidence summary.
	SummarySuffix = "_summary_confidences.json"
	// ModelSuffix names the tool's top-ranked model.
	ModelSuffix = "_model.cif"
)

// Layout resolves paths under a jobs root.
type Layout struct {
	Fs   afero.Fs
	Root string
}

// NewLayout returns a layout on the OS filesystem.
func NewLayout(root string) Layout {
	return Layout{Fs: afero.NewOsFs(), Root: root}
}

func (l Layout) BatchDir(batch string) string {
	return filepath.Join(l.Root, batch)
}

func (l Layout) JobDir(batch, job string) string {
	return filepath.Join(l.Root, batch, job)
}

// InputFile is the builder's job description name, e.g. foo_0.json.
func InputFile(job string) string { return job + InputSuffix }

// DataFile is the data-pipeline output name, e.g. foo_0_data.json.
func DataFile(job string) string { return job + DataSuffix }

// SummaryFile is the tool's summary name for job.
func SummaryFile(job string) string { return job + SummarySuffix }

// OutputDirNames lists the names the tool may use for its output directory.
// The tool lower-cases job names.
func OutputDirNames(job string) []string {
	lower := strings.ToLower(job)
	if lower == job {
		return []string{job}
	}
	return []string{job, lower}
}

// DataCandidates lists where the data-pipeline output of job may be,
// relative to its job directory: next to the input first, then inside the
// tool's output directory, which the data stage creates under the job
// directory.
func DataCandidates(job string) []string {
	paths := []string{DataFile(job)}
	for _, n := range OutputDirNames(job) {
		paths = append(paths, path.Join(n, DataFile(n)))
	}
	return paths
}

// InferenceCandidates lists the files, relative to the job directory, whose
// presence shows that inference ran. The output directory alone does not:
// the data stage creates it too.
func InferenceCandidates(job string) []string {
	paths := []string{SummaryFile(job)}
	for _, n := range OutputDirNames(job) {
		paths = append(paths, path.Join(n, SummaryFile(n)), path.Join(n, n+ModelSuffix))
	}
	return paths
}

// Entry is one item of a directory listing.
type Entry struct {
	Name    string
	Dir     bool
	ModTime time.Time
}

// List returns the entries of dir in name order. A missing directory is an
// empty listing.
func List(fs afero.Fs, dir string) ([]Entry, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{Name: info.Name(), Dir: info.IsDir(), ModTime: info.ModTime()})
	}
	return entries, nil
}

// ListJob lists the job directory of job together with the tool's output
// directories inside it. Entries of an output directory are named
// "{output dir}/{name}".
func ListJob(fs afero.Fs, dir, job string) ([]Entry, error) {
	entries, err := List(fs, dir)
	if err != nil {
		return nil, err
	}
	out := entries
	for _, n := range OutputDirNames(job) {
		if !HasDir(entries, n) {
			continue
		}
		sub, err := List(fs, filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		for _, e := range sub {
			e.Name = path.Join(n, e.Name)
			out = append(out, e)
		}
	}
	return out, nil
}

// ListDirs returns the names of the subdirectories of dir in name order.
func ListDirs(fs afero.Fs, dir string) ([]string, error) {
	entries, err := List(fs, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Dir && !strings.HasPrefix(e.Name, ".") {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// HasFile reports whether entries contain a regular file called name.
func HasFile(entries []Entry, name string) bool {
	for _, e := range entries {
		if e.Name == name && !e.Dir {
			return true
		}
	}
	return false
}

// HasDir reports whether entries contain a directory called name.
func HasDir(entries []Entry, name string) bool {
	for _, e := range entries {
		if e.Name == name && e.Dir {
			return true
		}
	}
	return false
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(fs afero.Fs, path string, v any, indent string) error {
	data, err := json.MarshalIndent(v, "", indent)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFile(fs, path, append(data, '\n'))
}

// WriteFile writes data, creating parent directories.
func WriteFile(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
