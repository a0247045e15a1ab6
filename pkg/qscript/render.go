// Package qscript renders scheduler batch scripts from a resolved
// configuration.
package qscript

import (
	"sort"
	"strings"

	"github.com/quatton/qfold/pkg/qconf"
	"github.com/quatton/qfold/pkg/qerr"
)

const (
	DefaultJobName = "alphafold3"
	DefaultModule  = "alphafold/3.0.0"
	DefaultTool    = "alphafold"

	// None disables the constraint directive or the module line.
	None = "none"
)

// directive is one #SBATCH line; the name is the scheduler flag.
type directive struct {
	flag string
	key  string
}

var directives = []directive{
	{"time", qconf.KeyTime},
	{"mem", qconf.KeyMem},
	{"partition", qconf.KeyPartition},
	{"ntasks", qconf.KeyNTasks},
	{"cpus-per-task", qconf.KeyCPUsPerTask},
	{"mail-type", qconf.KeyMailType},
	{"mail-user", qconf.KeyMailUser},
	{"output", qconf.KeySlurmOutput},
	{"error", qconf.KeySlurmError},
}

// RequiredKeys lists the keys every configuration must carry. gpus is
// additionally required on GPU partitions.
func RequiredKeys() []string {
	keys := make([]string, 0, len(directives)+2)
	for _, d := range directives {
		keys = append(keys, d.key)
	}
	return append(keys, qconf.KeyInputJSON, qconf.KeyOutputDir)
}

// IsGPUPartition reports whether partition belongs to the GPU queue class:
// "gpu" itself or any name starting with it.
func IsGPUPartition(partition string) bool {
	return strings.HasPrefix(strings.ToLower(partition), "gpu")
}

// Render returns the batch script for cfg. The same configuration always
// renders the same text.
func Render(cfg qconf.Configuration) (string, error) {
	if err := checkRequired(cfg); err != nil {
		return "", err
	}
	gpu := IsGPUPartition(cfg.String(qconf.KeyPartition))

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	sbatch(&b, "job-name", valueOr(cfg, qconf.KeyJobName, DefaultJobName))
	for _, d := range directives {
		sbatch(&b, d.flag, cfg.String(d.key))
	}
	if gpu {
		sbatch(&b, "gpus", cfg.String(qconf.KeyGPUs))
	}
	if c := cfg.String(qconf.KeyConstraint); c != "" && !strings.EqualFold(c, None) {
		sbatch(&b, "constraint", c)
	}

	b.WriteString("\n")
	if module := valueOr(cfg, qconf.KeyModule, DefaultModule); !strings.EqualFold(module, None) {
		b.WriteString("module load " + module + "\n")
	}

	command := []string{
		valueOr(cfg, qconf.KeyTool, DefaultTool),
		"--json_path=" + cfg.String(qconf.KeyInputJSON),
		"--output_dir=" + cfg.String(qconf.KeyOutputDir),
	}
	if cfg.IsFalse(qconf.KeyRunInference) {
		command = append(command, "--run_inference=false")
	}
	if cfg.IsFalse(qconf.KeyRunDataPipeline) {
		command = append(command, "--run_data_pipeline=false")
	}
	b.WriteString(strings.Join(command, " \\\n"))
	b.WriteString("\n")
	return b.String(), nil
}

func checkRequired(cfg qconf.Configuration) error {
	var missing []string
	for _, key := range RequiredKeys() {
		if !cfg.Has(key) {
			missing = append(missing, key)
		}
	}
	if IsGPUPartition(cfg.String(qconf.KeyPartition)) && !cfg.Has(qconf.KeyGPUs) {
		missing = append(missing, qconf.KeyGPUs)
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return qerr.Newf(qerr.CodeConfigError, "configuration is missing required keys: %s", strings.Join(missing, ", "))
}

func sbatch(b *strings.Builder, flag, value string) {
	b.WriteString("#SBATCH --")
	b.WriteString(flag)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}

func valueOr(cfg qconf.Configuration, key, fallback string) string {
	if v := cfg.String(key); v != "" {
		return v
	}
	return fallback
}
