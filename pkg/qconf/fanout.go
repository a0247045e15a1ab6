package qconf

import (
	"fmt"
	"path"
	"strings"
)

// Logical keys understood by the fan-out table.
const (
	KeyWorkingDirectory = "working_directory"
	KeyPhase            = "phase"
)

// Physical keys read by the script renderer.
const (
	KeyJobName         = "job_name"
	KeyTime            = "time"
	KeyMem             = "mem"
	KeyPartition       = "partition"
	KeyNTasks          = "ntasks"
	KeyCPUsPerTask     = "cpus_per_task"
	KeyMailType        = "mail_type"
	KeyMailUser        = "mail_user"
	KeySlurmOutput     = "slurm_output"
	KeySlurmError      = "slurm_error"
	KeyGPUs            = "gpus"
	KeyConstraint      = "constraint"
	KeyModule          = "module"
	KeyTool            = "tool"
	KeyInputJSON       = "input_json"
	KeyOutputDir       = "output_dir"
	KeyRunInference    = "run_inference"
	KeyRunDataPipeline = "run_data_pipeline"
)

// Phases accepted by the phase key.
const (
	PhaseCPU = "cpu"
	PhaseGPU = "gpu"
)

// SchedulerLogName is the scheduler log pattern under a working directory;
// %j is replaced by the scheduler job id.
const SchedulerLogName = "slurm-%j.log"

// Expansion derives physical keys from the value of a logical key.
type Expansion func(value any) []Override

// FanOut maps logical keys to their expansion. The logical key itself is
// recorded as well.
var FanOut = map[string]Expansion{
	KeyWorkingDirectory: func(value any) []Override {
		dir := fmt.Sprint(value)
		log := path.Join(dir, SchedulerLogName)
		return []Override{
			Set(KeyOutputDir, dir),
			Set(KeySlurmOutput, log),
			Set(KeySlurmError, log),
		}
	},
	KeyPhase: func(value any) []Override {
		switch strings.ToLower(fmt.Sprint(value)) {
		case PhaseCPU:
			return []Override{Set(KeyPartition, PhaseCPU), Set(KeyRunInference, false)}
		case PhaseGPU:
			return []Override{Set(KeyPartition, PhaseGPU), Set(KeyRunInference, true)}
		}
		return nil
	},
}
