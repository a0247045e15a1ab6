package qparse

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Phase is the part of a tool run a scheduler log belongs to.
type Phase string

const (
	PhaseCPU     Phase = "cpu"
	PhaseGPU     Phase = "gpu"
	PhaseUnknown Phase = ""
)

// Log lines that identify a phase.
const (
	DataPipelineMarker = "Running data pipeline..."
	InferenceMarker    = "Running model inference for seed 1..."
)

// ClassifyPhase scans a log and returns the phase of the first marker line.
// A log with neither marker is PhaseUnknown.
func ClassifyPhase(r io.Reader) (Phase, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, DataPipelineMarker):
			return PhaseCPU, nil
		case strings.Contains(line, InferenceMarker):
			return PhaseGPU, nil
		}
	}
	if err := sc.Err(); err != nil {
		return PhaseUnknown, fmt.Errorf("scanning log: %w", err)
	}
	return PhaseUnknown, nil
}

var digitsRe = regexp.MustCompile(`[0-9]+`)

// SchedulerJobID returns the first run of digits in a log file name, e.g.
// "12345" for slurm-12345.log.
func SchedulerJobID(logName string) (string, bool) {
	id := digitsRe.FindString(logName)
	return id, id != ""
}

// IsSchedulerLog reports whether name is a scheduler log file.
func IsSchedulerLog(name string) bool {
	return strings.Contains(name, "slurm")
}
