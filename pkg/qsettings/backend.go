package qsettings

import (
	"path/filepath"
	"strings"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qsubmit"
)

// ParseMount reads "host:container" or "host:container:ro".
func ParseMount(spec string) (qsubmit.Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return qsubmit.Mount{}, qerr.Newf(qerr.CodeConfigError, "mount %q: want host:container[:ro]", spec)
	}
	m := qsubmit.Mount{Source: parts[0], Destination: parts[1]}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return qsubmit.Mount{}, qerr.Newf(qerr.CodeConfigError, "mount %q: unknown mode %q", spec, parts[2])
		}
	}
	return m, nil
}

// BackendOptions converts the settings into submission backend options. The
// jobs root is made absolute so containers see the same paths.
func (s *Settings) BackendOptions() (qsubmit.BackendOptions, error) {
	root, err := filepath.Abs(s.JobsRoot)
	if err != nil {
		return qsubmit.BackendOptions{}, err
	}
	container := qsubmit.DefaultContainerConfig()
	if s.Container.Image != "" {
		container.Image = s.Container.Image
	}
	if s.Container.Network != "" {
		container.NetworkMode = s.Container.Network
	}
	for _, spec := range s.Container.Mounts {
		m, err := ParseMount(spec)
		if err != nil {
			return qsubmit.BackendOptions{}, err
		}
		container.Mounts = append(container.Mounts, m)
	}
	return qsubmit.BackendOptions{
		JobsRoot:   root,
		Container:  container,
		Namespace:  s.K8s.Namespace,
		Queue:      s.K8s.Queue,
		Kubeconfig: s.K8s.Kubeconfig,
	}, nil
}
