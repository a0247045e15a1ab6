package qparse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/spf13/afero"
)

// Confidence holds the summary scores of a job. Any score may be missing.
type Confidence struct {
	IPTM         *float64 `json:"iptm,omitempty"`
	PTM          *float64 `json:"ptm,omitempty"`
	RankingScore *float64 `json:"ranking_score,omitempty"`
	// File is the summary the scores were read from.
	File string `json:"file"`
}

// SummaryCandidates lists where the summary of job may be, in lookup order:
// the job directory, then the tool's output directory under its exact and
// lower-cased names.
func SummaryCandidates(jobDir, job string) []string {
	names := qfs.OutputDirNames(job)
	var paths []string
	for _, n := range names {
		paths = append(paths, filepath.Join(jobDir, qfs.SummaryFile(n)))
	}
	for _, d := range names {
		for _, n := range names {
			paths = append(paths, filepath.Join(jobDir, d, qfs.SummaryFile(n)))
		}
	}
	return paths
}

// ReadConfidence reads the first summary found for job. It returns nil when
// there is none yet.
func ReadConfidence(fs afero.Fs, jobDir, job string) (*Confidence, error) {
	for _, path := range SummaryCandidates(jobDir, job) {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var c Confidence
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, qerr.New(qerr.CodeParseError, fmt.Errorf("%s: %w", path, err))
		}
		c.File = path
		return &c, nil
	}
	return nil, nil
}
