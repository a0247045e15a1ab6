package qsubmit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quatton/qfold/pkg/qconf"
	"github.com/quatton/qfold/pkg/qerr"
)

// ContainerConfig is shared by the container backends (Docker, Kubernetes).
type ContainerConfig struct {
	// Image must provide bash and the prediction tool.
	Image string

	// Mounts are added to the jobs root mount.
	Mounts []Mount

	// NetworkMode is the Docker network mode (e.g. "host", "bridge").
	NetworkMode string
}

// Mount represents a volume mount for containers
type Mount struct {
	// Source is the host path.
	Source string

	// Destination is the target path inside the container
	Destination string

	ReadOnly bool
}

// DefaultContainerConfig returns the image and network defaults.
func DefaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		Image:       "alphafold3:latest",
		NetworkMode: "bridge",
	}
}

// Resources is the resource request a configuration carries, translated from
// the scheduler keys (mem, cpus_per_task, gpus).
type Resources struct {
	MemoryBytes int64
	CPUs        int64
	GPUs        int64
}

// ResourcesFrom reads the resource keys of cfg. Missing keys are zero.
func ResourcesFrom(cfg qconf.Configuration) (Resources, error) {
	var r Resources
	var err error
	if cfg.Has(qconf.KeyMem) {
		if r.MemoryBytes, err = ParseMemory(cfg.String(qconf.KeyMem)); err != nil {
			return Resources{}, err
		}
	}
	if r.CPUs, err = intKey(cfg, qconf.KeyCPUsPerTask); err != nil {
		return Resources{}, err
	}
	if r.GPUs, err = intKey(cfg, qconf.KeyGPUs); err != nil {
		return Resources{}, err
	}
	return r, nil
}

func intKey(cfg qconf.Configuration, key string) (int64, error) {
	s := cfg.String(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, qerr.Newf(qerr.CodeConfigError, "%s: %q is not an integer", key, s)
	}
	return n, nil
}

// ParseMemory converts a scheduler memory request ("64G", "512M", "1024") to
// bytes. Suffixes are binary; a bare number is megabytes.
func ParseMemory(request string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(request))
	s = strings.TrimSuffix(s, "B")
	if s == "" {
		return 0, qerr.Newf(qerr.CodeConfigError, "empty memory request")
	}
	shift := 20
	switch s[len(s)-1] {
	case 'K':
		shift = 10
	case 'M':
		shift = 20
	case 'G':
		shift = 30
	case 'T':
		shift = 40
	default:
		s += "M"
	}
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || n < 0 {
		return 0, qerr.Newf(qerr.CodeConfigError, "invalid memory request %q", request)
	}
	return int64(n * float64(int64(1)<<shift)), nil
}

// scriptCommand is the container command for a request.
func scriptCommand(req Request) []string {
	return []string{"bash", req.ScriptPath}
}

func containerName(req Request) string {
	return fmt.Sprintf("qfold-%s-%s", dnsLabel(req.Job), req.Stage)
}

// dnsLabel lower-cases name and replaces everything outside [a-z0-9-].
func dnsLabel(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
