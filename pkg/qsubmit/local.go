package qsubmit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// LocalLogPrefix names the output file of local runs. The process id follows
// the prefix so that the parser can pick the log up like a scheduler log.
const LocalLogPrefix = "slurm-local-"

// LocalSubmitter runs the script with bash on this machine, detached from the
// submitting process. #SBATCH lines are plain comments to bash.
type LocalSubmitter struct {
	shell string
}

func NewLocalSubmitter() *LocalSubmitter {
	return &LocalSubmitter{shell: "bash"}
}

func (s *LocalSubmitter) Name() string { return BackendLocal }

func (s *LocalSubmitter) Submit(ctx context.Context, req Request) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	pending := filepath.Join(req.JobDir, LocalLogPrefix+"pending.log")
	logFile, err := os.Create(pending)
	if err != nil {
		return Submission{}, submissionError(BackendLocal, req.Job, fmt.Errorf("failed to create log file: %w", err))
	}
	defer logFile.Close()

	// Not CommandContext: the run must outlive the submission pass.
	cmd := exec.Command(s.shell, req.ScriptPath)
	cmd.Dir = req.JobDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"QFOLD_JOB="+req.Job,
		"QFOLD_STAGE="+string(req.Stage),
	)
	if err := cmd.Start(); err != nil {
		os.Remove(pending)
		return Submission{}, submissionError(BackendLocal, req.Job, err)
	}

	// The run has started from here on; failures below must not make the
	// caller think it can resubmit.
	pid := strconv.Itoa(cmd.Process.Pid)
	_ = os.Rename(pending, filepath.Join(req.JobDir, LocalLogPrefix+pid+".log"))
	_ = cmd.Process.Release()
	return Submission{Backend: BackendLocal, SchedulerID: pid}, nil
}
