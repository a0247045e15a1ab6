package qsubmit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var (
	submittedRe = regexp.MustCompile(`Submitted batch job (\d+)`)
	// --parsable output: "12345" or "12345;cluster".
	parsableRe = regexp.MustCompile(`(?m)^\s*(\d+)(?:;\S+)?\s*$`)
)

// CommandFunc runs an external command and returns its standard output.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecCommand runs name with os/exec. Standard error is folded into the
// returned error.
func ExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// SlurmSubmitter submits scripts with sbatch.
type SlurmSubmitter struct {
	run CommandFunc
}

func NewSlurmSubmitter() *SlurmSubmitter {
	return &SlurmSubmitter{run: ExecCommand}
}

// NewSlurmSubmitterWithCommand uses run instead of os/exec.
func NewSlurmSubmitterWithCommand(run CommandFunc) *SlurmSubmitter {
	return &SlurmSubmitter{run: run}
}

func (s *SlurmSubmitter) Name() string { return BackendSlurm }

func (s *SlurmSubmitter) Submit(ctx context.Context, req Request) (Submission, error) {
	out, err := s.run(ctx, "sbatch", req.ScriptPath)
	if err != nil {
		return Submission{}, submissionError(BackendSlurm, req.Job, err)
	}
	// A zero exit means the scheduler accepted the job; the id is best effort.
	return Submission{Backend: BackendSlurm, SchedulerID: SchedulerIDFromSbatch(out)}, nil
}

// SchedulerIDFromSbatch extracts the job id from sbatch output in either the
// default or the --parsable form. It returns "" when there is none.
func SchedulerIDFromSbatch(out []byte) string {
	if m := submittedRe.FindSubmatch(out); m != nil {
		return string(m[1])
	}
	if m := parsableRe.FindSubmatch(out); m != nil {
		return string(m[1])
	}
	return ""
}
