package qsubmit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quatton/qfold/pkg/qconf"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/spf13/afero"
)

type fakeSubmitter struct {
	requests []Request
	fail     map[string]bool
}

func (f *fakeSubmitter) Name() string { return "fake" }

func (f *fakeSubmitter) Submit(_ context.Context, req Request) (Submission, error) {
	f.requests = append(f.requests, req)
	if f.fail[req.Job] {
		return Submission{}, errors.New("queue is full")
	}
	return Submission{Backend: "fake", SchedulerID: "100" + req.Job}, nil
}

func testBase() *qconf.Base {
	return qconf.NewBase(map[string]any{
		"time":          "3:00:00",
		"mem":           "64G",
		"partition":     "cpu",
		"ntasks":        1,
		"cpus_per_task": 8,
		"mail_type":     "NONE",
		"mail_user":     "nobody@example.org",
		"gpus":          1,
		"constraint":    "None",
	})
}

func seedBatch(t *testing.T, layout qfs.Layout, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := qfs.WriteFile(layout.Fs, filepath.Join(layout.Root, path), []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestControllerIdempotentPass(t *testing.T) {
	layout := qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
	seedBatch(t, layout, map[string]string{
		"motifs/pax9/pax9.json":       "{}",
		"motifs/vsx2/vsx2.json":       "{}",
		"motifs/vsx2/vsx2_data.json":  "{}",
		"motifs/empty/notes.txt":      "",
		"motifs/.hidden/ignored.json": "{}",
	})
	sub := &fakeSubmitter{}
	c := NewController(layout, testBase(), sub, nil)

	report, err := c.Run(context.Background(), "motifs", Options{Stage: StageData})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if report.Submitted() != 1 || len(sub.requests) != 1 || sub.requests[0].Job != "pax9" {
		t.Fatalf("expected only pax9 submitted, got %+v", sub.requests)
	}
	if report.Count(StateAlreadySubmitted) != 1 || report.Count(StateNotReady) != 1 {
		t.Errorf("counts: %+v", report.Outcomes)
	}

	req := sub.requests[0]
	if !strings.Contains(req.Script, "--run_inference=false") || !strings.Contains(req.Script, "--partition=cpu") {
		t.Errorf("data stage script:\n%s", req.Script)
	}
	onDisk, err := afero.ReadFile(layout.Fs, "/jobs/motifs/pax9/run_af3_data.sh")
	if err != nil || string(onDisk) != req.Script {
		t.Errorf("script not persisted: %v", err)
	}

	data, err := afero.ReadFile(layout.Fs, "/jobs/motifs/pax9/.qfold-data.json")
	if err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		t.Fatal(err)
	}
	if marker.SchedulerID != "100pax9" || marker.Stage != StageData || marker.ID == "" {
		t.Errorf("marker = %+v", marker)
	}

	// Second pass: nothing left to submit.
	again, err := c.Run(context.Background(), "motifs", Options{Stage: StageData})
	if err != nil {
		t.Fatal(err)
	}
	if again.Submitted() != 0 || len(sub.requests) != 1 {
		t.Errorf("second pass resubmitted: %+v", sub.requests)
	}
}

func TestControllerRejectionLeavesNoMarker(t *testing.T) {
	layout := qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
	seedBatch(t, layout, map[string]string{
		"ava/foo_0/foo_0_data.json": "{}",
		"ava/foo_1/foo_1_data.json": "{}",
	})
	sub := &fakeSubmitter{fail: map[string]bool{"foo_0": true}}
	c := NewController(layout, testBase(), sub, nil)

	report, err := c.Run(context.Background(), "ava", Options{Stage: StageInference})
	if err != nil {
		t.Fatal(err)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Job != "foo_0" || !qerr.IsCode(failed[0].Err, qerr.CodeSubmissionError) {
		t.Fatalf("failed = %+v", failed)
	}
	if ok, _ := afero.Exists(layout.Fs, "/jobs/ava/foo_0/.qfold-inference.json"); ok {
		t.Error("rejected job must not be marked")
	}
	if ok, _ := afero.Exists(layout.Fs, "/jobs/ava/foo_1/.qfold-inference.json"); !ok {
		t.Error("accepted job must be marked")
	}

	gpu := sub.requests[1]
	if !strings.Contains(gpu.Script, "#SBATCH --gpus=1") || !strings.Contains(gpu.Script, "--run_data_pipeline=false") {
		t.Errorf("inference script:\n%s", gpu.Script)
	}

	// The failed job is retried on the next pass.
	sub.fail = nil
	retry, _ := c.Run(context.Background(), "ava", Options{Stage: StageInference})
	if retry.Submitted() != 1 || sub.requests[len(sub.requests)-1].Job != "foo_0" {
		t.Errorf("retry = %+v", retry.Outcomes)
	}
}

func TestControllerDataThenInference(t *testing.T) {
	layout := qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
	seedBatch(t, layout, map[string]string{"b/pax9/pax9.json": "{}"})
	sub := &fakeSubmitter{}
	c := NewController(layout, testBase(), sub, nil)
	ctx := context.Background()

	data, err := c.Run(ctx, "b", Options{Stage: StageData})
	if err != nil || data.Submitted() != 1 {
		t.Fatalf("data pass = %+v, %v", data.Outcomes, err)
	}
	if !strings.Contains(sub.requests[0].Script, "--output_dir=/jobs/b/pax9") {
		t.Errorf("data script:\n%s", sub.requests[0].Script)
	}

	// Inference before the data pipeline finished has no input.
	early, _ := c.Run(ctx, "b", Options{Stage: StageInference})
	if early.Count(StateNotReady) != 1 {
		t.Fatalf("early inference = %+v", early.Outcomes)
	}

	// The tool writes its output directory under the output_dir.
	seedBatch(t, layout, map[string]string{"b/pax9/pax9/pax9_data.json": "{}"})

	inf, err := c.Run(ctx, "b", Options{Stage: StageInference})
	if err != nil {
		t.Fatal(err)
	}
	if inf.Submitted() != 1 {
		t.Fatalf("inference after data stage = %+v", inf.Outcomes)
	}
	gpu := sub.requests[len(sub.requests)-1]
	for _, want := range []string{"--json_path=/jobs/b/pax9/pax9/pax9_data.json", "--run_data_pipeline=false", "--partition=gpu"} {
		if !strings.Contains(gpu.Script, want) {
			t.Errorf("missing %s in\n%s", want, gpu.Script)
		}
	}

	if again, _ := c.Run(ctx, "b", Options{Stage: StageData}); again.Count(StateAlreadySubmitted) != 1 {
		t.Errorf("data rerun = %+v", again.Outcomes)
	}

	// Without the marker, the summary alone marks inference as done.
	if err := layout.Fs.Remove("/jobs/b/pax9/.qfold-inference.json"); err != nil {
		t.Fatal(err)
	}
	seedBatch(t, layout, map[string]string{"b/pax9/pax9/pax9_summary_confidences.json": `{"iptm": 0.8}`})
	done, _ := c.Run(ctx, "b", Options{Stage: StageInference})
	if done.Count(StateAlreadySubmitted) != 1 || !strings.Contains(done.Outcomes[0].Reason, "summary") {
		t.Errorf("finished inference = %+v", done.Outcomes)
	}
}

func TestControllerDryRunAndOverrides(t *testing.T) {
	layout := qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
	seedBatch(t, layout, map[string]string{
		"ava/foo_0/foo_0.json": "{}",
		"ava/bar_0/bar_0.json": "{}",
	})
	sub := &fakeSubmitter{}
	c := NewController(layout, testBase(), sub, nil)

	report, err := c.Run(context.Background(), "ava", Options{
		Stage:     StageFull,
		DryRun:    true,
		Jobs:      []string{"foo_0"},
		Overrides: []qconf.Override{qconf.Set("partition", "gpu-a100"), qconf.Set("constraint", "h100")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.requests) != 0 {
		t.Error("dry run submitted")
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].State != StateReady {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	script, err := afero.ReadFile(layout.Fs, "/jobs/ava/foo_0/run_af3_full.sh")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--partition=gpu-a100", "--constraint=h100", "--gpus=1", "--json_path=/jobs/ava/foo_0/foo_0.json"} {
		if !strings.Contains(string(script), want) {
			t.Errorf("missing %s in\n%s", want, script)
		}
	}
	if strings.Contains(string(script), "--run_data_pipeline=false") {
		t.Error("full stage without data must run the pipeline")
	}
	if ok, _ := afero.Exists(layout.Fs, "/jobs/ava/foo_0/.qfold-full.json"); ok {
		t.Error("dry run must not write a marker")
	}
}

func TestControllerConfigErrorIsPerJob(t *testing.T) {
	layout := qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
	seedBatch(t, layout, map[string]string{"b/j/j.json": "{}"})
	c := NewController(layout, qconf.NewBase(nil), &fakeSubmitter{}, nil)

	report, err := c.Run(context.Background(), "b", Options{Stage: StageData})
	if err != nil {
		t.Fatal(err)
	}
	if f := report.Failed(); len(f) != 1 || !qerr.IsCode(f[0].Err, qerr.CodeConfigError) {
		t.Errorf("failed = %+v", f)
	}
}

func TestControllerMissingBatchIsEmpty(t *testing.T) {
	layout := qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
	c := NewController(layout, testBase(), &fakeSubmitter{}, nil)
	report, err := c.Run(context.Background(), "nope", Options{Stage: StageData})
	if err != nil || len(report.Outcomes) != 0 {
		t.Errorf("Run = %+v, %v", report, err)
	}
}
