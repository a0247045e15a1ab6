package qsubmit

import (
	"context"
	"fmt"
	"strings"

	"github.com/quatton/qfold/pkg/qconf"
	"github.com/quatton/qfold/pkg/qerr"
)

// Backend names accepted by New.
const (
	BackendSlurm  = "slurm"
	BackendLocal  = "local"
	BackendDocker = "docker"
	BackendK8s    = "k8s"
)

// Request is one job stage handed to a backend. The script has already been
// written to ScriptPath.
type Request struct {
	Job        string
	Stage      Stage
	JobDir     string
	ScriptPath string
	Script     string
	Config     qconf.Configuration
}

// Submission is what a backend reports once it accepted a request.
type Submission struct {
	Backend string
	// SchedulerID identifies the work in the backend: a SLURM job id, a
	// process id, a container id or a Kubernetes Job name.
	SchedulerID string
}

// Submitter hands a rendered script to an execution backend. Submit must
// return an error unless the backend accepted the work.
type Submitter interface {
	Name() string
	Submit(ctx context.Context, req Request) (Submission, error)
}

// BackendOptions configures the container backends.
type BackendOptions struct {
	// JobsRoot is mounted into containers at the same path.
	JobsRoot  string
	Container ContainerConfig
	Namespace string
	Queue     string
	// Kubeconfig overrides the kubeconfig lookup of the k8s backend.
	Kubeconfig string
}

// New returns the backend called name.
func New(name string, opts BackendOptions) (Submitter, error) {
	switch strings.ToLower(name) {
	case BackendSlurm, "":
		return NewSlurmSubmitter(), nil
	case BackendLocal:
		return NewLocalSubmitter(), nil
	case BackendDocker:
		return NewDockerSubmitter(opts.JobsRoot, opts.Container)
	case BackendK8s:
		return NewK8sSubmitterFromConfig(opts)
	}
	return nil, qerr.Newf(qerr.CodeConfigError, "unknown backend %q", name)
}

func submissionError(backend, job string, err error) error {
	return qerr.New(qerr.CodeSubmissionError, fmt.Errorf("%s rejected %s: %w", backend, job, err))
}
