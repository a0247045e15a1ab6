// Package qsubmit submits the jobs of a batch exactly once. Submission state
// is never stored on its own: it is reconstructed on every pass from the
// artifacts present in each job directory.
package qsubmit

import (
	"fmt"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
)

// Stage is the part of the tool run a pass submits.
type Stage string

const (
	// StageData runs the CPU data pipeline only.
	StageData Stage = "data"
	// StageInference runs GPU inference on the data-pipeline output.
	StageInference Stage = "inference"
	// StageFull runs whatever is left in one GPU job.
	StageFull Stage = "full"
)

// Stages lists every stage in submission order.
var Stages = []Stage{StageData, StageInference, StageFull}

func ParseStage(s string) (Stage, error) {
	switch st := Stage(s); st {
	case StageData, StageInference, StageFull:
		return st, nil
	}
	return "", qerr.Newf(qerr.CodeConfigError, "unknown stage %q (want data, inference or full)", s)
}

// State is the submission state of one job for one stage.
type State int

const (
	StateNotReady State = iota
	StateAlreadySubmitted
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateAlreadySubmitted:
		return "already_submitted"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarkerFile is the submission marker written after the scheduler accepted a
// stage, e.g. .qfold-data.json.
func MarkerFile(stage Stage) string {
	return ".qfold-" + string(stage) + ".json"
}

// ScriptFile is the name of the persisted batch script, e.g. run_af3_data.sh.
func ScriptFile(stage Stage) string {
	return "run_af3_" + string(stage) + ".sh"
}

// Classify derives the state of job for stage from a qfs.ListJob listing of
// its job directory. A missing input wins over an earlier submission. It does
// not touch the filesystem.
func Classify(stage Stage, job string, entries []qfs.Entry) (State, string) {
	if _, ok := Input(stage, job, entries); !ok {
		return StateNotReady, fmt.Sprintf("missing input %s", requiredInput(stage, job))
	}
	if reason, done := completed(stage, job, entries); done {
		return StateAlreadySubmitted, reason
	}
	return StateReady, ""
}

func completed(stage Stage, job string, entries []qfs.Entry) (string, bool) {
	markers := []Stage{stage}
	switch stage {
	case StageData:
		if name, ok := firstFile(entries, qfs.DataCandidates(job)); ok {
			return name + " exists", true
		}
	case StageInference, StageFull:
		if name, ok := firstFile(entries, qfs.InferenceCandidates(job)); ok {
			return name + " exists", true
		}
		if stage == StageFull {
			markers = append(markers, StageInference)
		}
	}
	for _, m := range markers {
		if qfs.HasFile(entries, MarkerFile(m)) {
			return "submission marker " + MarkerFile(m) + " exists", true
		}
	}
	return "", false
}

// Input returns the job description a stage reads, relative to the job
// directory, and whether it is present. Data-pipeline output is looked up
// next to the plain description and inside the tool's output directory; for
// StageFull it is preferred over the plain description.
func Input(stage Stage, job string, entries []qfs.Entry) (string, bool) {
	switch stage {
	case StageData:
		return qfs.InputFile(job), qfs.HasFile(entries, qfs.InputFile(job))
	case StageInference:
		if name, ok := firstFile(entries, qfs.DataCandidates(job)); ok {
			return name, true
		}
		return qfs.DataFile(job), false
	default:
		if name, ok := firstFile(entries, qfs.DataCandidates(job)); ok {
			return name, true
		}
		return qfs.InputFile(job), qfs.HasFile(entries, qfs.InputFile(job))
	}
}

func firstFile(entries []qfs.Entry, names []string) (string, bool) {
	for _, n := range names {
		if qfs.HasFile(entries, n) {
			return n, true
		}
	}
	return "", false
}

func requiredInput(stage Stage, job string) string {
	if stage == StageInference {
		return qfs.DataFile(job)
	}
	return qfs.InputFile(job)
}
