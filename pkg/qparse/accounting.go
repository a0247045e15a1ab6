// Package qparse extracts performance and quality metrics from finished jobs:
// scheduler accounting reports, phase markers in scheduler logs and the
// tool's confidence summaries.
package qparse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quatton/qfold/pkg/kv"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qsubmit"
)

var (
	wallClockRe = regexp.MustCompile(`Job Wall-clock time:\s*(?:(\d+)-)?(\d+):(\d{2}):(\d{2})`)
	memoryRe    = regexp.MustCompile(`Memory Utilized:\s*(\d+(?:\.\d+)?)\s*(MB|GB)`)
	stateRe     = regexp.MustCompile(`(?m)^State:\s*([A-Z_]+)`)
)

// Usage is the resource usage of one scheduler job.
type Usage struct {
	WallTimeMinutes float64 `json:"wall_time_minutes"`
	PeakMemoryGB    float64 `json:"peak_memory_gb"`
	// State is the scheduler state (COMPLETED, RUNNING, ...) when reported.
	State string `json:"state,omitempty"`
}

// ParseAccounting reads wall-clock time and peak memory from an accounting
// report. Time is converted to minutes and memory to gigabytes, both rounded
// to two decimals.
func ParseAccounting(report string) (Usage, error) {
	t := wallClockRe.FindStringSubmatch(report)
	if t == nil {
		return Usage{}, qerr.Newf(qerr.CodeParseError, "accounting report has no wall-clock time")
	}
	m := memoryRe.FindStringSubmatch(report)
	if m == nil {
		return Usage{}, qerr.Newf(qerr.CodeParseError, "accounting report has no memory in MB or GB")
	}

	var days, hours, minutes, seconds int
	if t[1] != "" {
		days, _ = strconv.Atoi(t[1])
	}
	hours, _ = strconv.Atoi(t[2])
	minutes, _ = strconv.Atoi(t[3])
	seconds, _ = strconv.Atoi(t[4])
	wall := float64(days*1440+hours*60+minutes) + float64(seconds)/60

	mem, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Usage{}, qerr.New(qerr.CodeParseError, fmt.Errorf("memory %q: %w", m[1], err))
	}
	if m[2] == "MB" {
		mem /= 1024
	}

	return Usage{
		WallTimeMinutes: round2(wall),
		PeakMemoryGB:    round2(mem),
		State:           ReportState(report),
	}, nil
}

// ReportState returns the scheduler state named in a report, or "".
func ReportState(report string) string {
	if m := stateRe.FindStringSubmatch(report); m != nil {
		return m[1]
	}
	return ""
}

// Finished reports whether a state is terminal.
func Finished(state string) bool {
	switch state {
	case "", "RUNNING", "PENDING", "REQUEUED", "SUSPENDED", "CONFIGURING", "COMPLETING":
		return false
	}
	return true
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Accountant fetches the accounting report of a scheduler job.
type Accountant interface {
	Report(ctx context.Context, schedulerID string) (string, error)
}

// SeffAccountant runs seff.
type SeffAccountant struct {
	run qsubmit.CommandFunc
}

func NewSeffAccountant() *SeffAccountant {
	return &SeffAccountant{run: qsubmit.ExecCommand}
}

// NewSeffAccountantWithCommand uses run instead of os/exec.
func NewSeffAccountantWithCommand(run qsubmit.CommandFunc) *SeffAccountant {
	return &SeffAccountant{run: run}
}

func (a *SeffAccountant) Report(ctx context.Context, schedulerID string) (string, error) {
	out, err := a.run(ctx, "seff", schedulerID)
	if err != nil {
		return "", fmt.Errorf("seff %s: %w", schedulerID, err)
	}
	return string(out), nil
}

// CachedAccountant keeps the reports of finished jobs in a kv.Store. Reports
// of running or pending jobs are always fetched again.
type CachedAccountant struct {
	inner Accountant
	store kv.Store
	ttl   time.Duration
}

// CacheKeyPrefix namespaces cached reports.
const CacheKeyPrefix = "seff:"

func NewCachedAccountant(inner Accountant, store kv.Store, ttl time.Duration) *CachedAccountant {
	return &CachedAccountant{inner: inner, store: store, ttl: ttl}
}

func (a *CachedAccountant) Report(ctx context.Context, schedulerID string) (string, error) {
	key := CacheKeyPrefix + schedulerID
	cached, err := a.store.Get(ctx, key)
	switch {
	case err == nil:
		return string(cached), nil
	case !errors.Is(err, kv.ErrNotFound):
		return "", fmt.Errorf("reading cached report %s: %w", schedulerID, err)
	}

	report, err := a.inner.Report(ctx, schedulerID)
	if err != nil {
		return "", err
	}
	if Finished(ReportState(report)) {
		// A finished report never changes, so the first writer wins. A cache
		// write failure only costs a later seff call.
		_, _ = a.store.SetNX(ctx, key, []byte(report), a.ttl)
	}
	return report, nil
}

// IsLocalLog reports whether a log was written by the local backend, which
// has no accounting.
func IsLocalLog(name string) bool {
	return strings.HasPrefix(name, qsubmit.LocalLogPrefix)
}
