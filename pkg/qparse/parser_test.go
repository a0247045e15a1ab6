package qparse

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/spf13/afero"
)

func TestClassifyPhase(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want Phase
	}{
		{"data pipeline", "I1010 start\nRunning data pipeline...\ndone\n", PhaseCPU},
		{"inference", "loading\nRunning model inference for seed 1...\n", PhaseGPU},
		{"first marker wins", "Running data pipeline...\nRunning model inference for seed 1...\n", PhaseCPU},
		{"first marker wins gpu", "Running model inference for seed 1...\nRunning data pipeline...\n", PhaseGPU},
		{"other seed is not a marker", "Running model inference for seed 2...\n", PhaseUnknown},
		{"empty", "", PhaseUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyPhase(strings.NewReader(tt.log))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("phase = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSchedulerJobID(t *testing.T) {
	if id, ok := SchedulerJobID("slurm-12345.log"); !ok || id != "12345" {
		t.Errorf("got %q %v", id, ok)
	}
	if id, ok := SchedulerJobID("slurm-77-2.out"); !ok || id != "77" {
		t.Errorf("got %q %v", id, ok)
	}
	if _, ok := SchedulerJobID("slurm.log"); ok {
		t.Error("expected no id")
	}
}

type mapAccountant map[string]string

func (m mapAccountant) Report(_ context.Context, id string) (string, error) {
	r, ok := m[id]
	if !ok {
		return "", qerr.Newf(qerr.CodeParseError, "unknown job %s", id)
	}
	return r, nil
}

func seff(wall, mem string) string {
	return "State: COMPLETED (exit code 0)\nJob Wall-clock time: " + wall + "\nMemory Utilized: " + mem + "\n"
}

func writeLog(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	if err := qfs.WriteFile(fs, path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := fs.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestParseJob(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := qfs.Layout{Fs: fs, Root: "/jobs"}
	dir := layout.JobDir("motifs", "PAX9_1")

	writeLog(t, fs, filepath.Join(dir, "slurm-100.log"), "Running data pipeline...\n", time.Time{})
	writeLog(t, fs, filepath.Join(dir, "slurm-200.log"), "Running model inference for seed 1...\n", time.Time{})
	writeLog(t, fs, filepath.Join(dir, "slurm-local-4242.log"), "Running data pipeline...\n", time.Time{})
	writeLog(t, fs, filepath.Join(dir, "notes.log"), "Running data pipeline...\n", time.Time{})
	summary := filepath.Join(dir, "pax9_1", "pax9_1_summary_confidences.json")
	if err := qfs.WriteFile(fs, summary, []byte(`{"iptm": 0.81, "ptm": 0.7, "ranking_score": 0.9}`)); err != nil {
		t.Fatal(err)
	}

	p := NewParser(layout, mapAccountant{
		"100": seff("00:45:00", "3.5 GB"),
		"200": seff("00:10:30", "1024 MB"),
	}, OrderListing, nil)

	m := p.ParseJob(context.Background(), "motifs", "PAX9_1")
	if len(m.Errors) != 0 {
		t.Fatalf("errors: %v", m.Errors)
	}
	cpu, ok := m.Usage(PhaseCPU)
	if !ok || cpu.WallTimeMinutes != 45 || cpu.PeakMemoryGB != 3.5 || cpu.SchedulerJobID != "100" {
		t.Errorf("cpu = %+v", cpu)
	}
	gpu, ok := m.Usage(PhaseGPU)
	if !ok || gpu.WallTimeMinutes != 10.5 || gpu.PeakMemoryGB != 1 {
		t.Errorf("gpu = %+v", gpu)
	}
	if len(m.Phases) != 2 {
		t.Errorf("phases = %v", m.Phases)
	}
	if iptm, ok := m.IPTM(); !ok || iptm != 0.81 {
		t.Errorf("iptm = %v %v", iptm, ok)
	}
	if m.Confidence.File != summary {
		t.Errorf("summary file = %s", m.Confidence.File)
	}
}

func TestParseJobLaterLogWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := qfs.Layout{Fs: fs, Root: "/jobs"}
	dir := layout.JobDir("motifs", "a_0")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// slurm-900 sorts after slurm-1000 by name but was written first.
	writeLog(t, fs, filepath.Join(dir, "slurm-900.log"), "Running data pipeline...\n", base)
	writeLog(t, fs, filepath.Join(dir, "slurm-1000.log"), "Running data pipeline...\n", base.Add(time.Hour))

	acct := mapAccountant{
		"900":  seff("00:01:00", "1 GB"),
		"1000": seff("00:02:00", "2 GB"),
	}

	listing := NewParser(layout, acct, OrderListing, nil).ParseJob(context.Background(), "motifs", "a_0")
	if got := listing.Phases[PhaseCPU].SchedulerJobID; got != "900" {
		t.Errorf("listing order: winner = %s, want 900", got)
	}

	mtime := NewParser(layout, acct, OrderMTime, nil).ParseJob(context.Background(), "motifs", "a_0")
	if got := mtime.Phases[PhaseCPU].SchedulerJobID; got != "1000" {
		t.Errorf("mtime order: winner = %s, want 1000", got)
	}
}

func TestParseJobCollectsErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := qfs.Layout{Fs: fs, Root: "/jobs"}
	dir := layout.JobDir("motifs", "a_0")
	writeLog(t, fs, filepath.Join(dir, "slurm-1.log"), "Running data pipeline...\n", time.Time{})
	writeLog(t, fs, filepath.Join(dir, "slurm-2.log"), "Running model inference for seed 1...\n", time.Time{})
	if err := qfs.WriteFile(fs, filepath.Join(dir, "a_0_summary_confidences.json"), []byte("{")); err != nil {
		t.Fatal(err)
	}

	p := NewParser(layout, mapAccountant{"2": "Job Wall-clock time: 00:05:00\n"}, OrderListing, nil)
	m := p.ParseJob(context.Background(), "motifs", "a_0")

	if len(m.Phases) != 0 {
		t.Errorf("phases = %v", m.Phases)
	}
	if len(m.Errors) != 3 {
		t.Fatalf("errors = %v", m.Errors)
	}
	for _, err := range m.Errors {
		if !qerr.IsCode(err, qerr.CodeParseError) {
			t.Errorf("expected parse error, got %v", err)
		}
	}
	if m.Confidence != nil {
		t.Error("broken summary must not yield scores")
	}
}

func TestParseJobKeepsEarlierUsageWhenLaterLogFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := qfs.Layout{Fs: fs, Root: "/jobs"}
	dir := layout.JobDir("motifs", "a_0")
	writeLog(t, fs, filepath.Join(dir, "slurm-1.log"), "Running data pipeline...\n", time.Time{})
	writeLog(t, fs, filepath.Join(dir, "slurm-2.log"), "Running data pipeline...\n", time.Time{})

	var buf bytes.Buffer
	p := NewParser(layout, mapAccountant{"1": seff("00:30:00", "2.00 GB")}, OrderListing, qlog.NewLogger(slog.LevelInfo, &buf))
	m := p.ParseJob(context.Background(), "motifs", "a_0")

	if u, ok := m.Usage(PhaseCPU); !ok || u.LogFile != "slurm-1.log" || u.WallTimeMinutes != 30 {
		t.Errorf("cpu usage = %+v %v", u, ok)
	}
	if len(m.Errors) != 1 {
		t.Fatalf("errors = %v", m.Errors)
	}
	if !strings.Contains(buf.String(), "keeping the earlier one") || !strings.Contains(buf.String(), "kept=slurm-1.log") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestParseBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := qfs.Layout{Fs: fs, Root: "/jobs"}
	write := func(job, body string) {
		path := filepath.Join(layout.JobDir("b", job), job+"_summary_confidences.json")
		if err := qfs.WriteFile(fs, path, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	write("foo_0", `{"iptm": 0.5}`)
	write("foo_1", `{"ptm": 0.4}`)
	if err := fs.MkdirAll(layout.JobDir("b", "bar_0"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := NewParser(layout, mapAccountant{}, "", nil)
	batch, err := p.ParseBatch(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Jobs) != 3 || batch.Jobs[0].Job != "bar_0" {
		t.Errorf("jobs = %+v", batch.Jobs)
	}
	scores := batch.IPTMScores()
	if len(scores) != 1 || scores["foo_0"] != 0.5 {
		t.Errorf("scores = %v", scores)
	}
	if errs := batch.Errors(); len(errs) != 0 {
		t.Errorf("errors = %v", errs)
	}
}

func TestParseOrder(t *testing.T) {
	if o, err := ParseOrder(""); err != nil || o != OrderListing {
		t.Errorf("default = %q %v", o, err)
	}
	if o, err := ParseOrder("mtime"); err != nil || o != OrderMTime {
		t.Errorf("mtime = %q %v", o, err)
	}
	if _, err := ParseOrder("size"); !qerr.IsCode(err, qerr.CodeConfigError) {
		t.Errorf("expected config error, got %v", err)
	}
}
