package qsubmit

import (
	"testing"

	"github.com/quatton/qfold/pkg/qfs"
)

func files(names ...string) []qfs.Entry {
	var entries []qfs.Entry
	for _, n := range names {
		entries = append(entries, qfs.Entry{Name: n})
	}
	return entries
}

func dir(name string) qfs.Entry { return qfs.Entry{Name: name, Dir: true} }

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		stage   Stage
		job     string
		entries []qfs.Entry
		want    State
	}{
		{"data ready", StageData, "pax9", files("pax9.json"), StateReady},
		{"data missing input", StageData, "pax9", nil, StateNotReady},
		{"data done by output", StageData, "pax9", files("pax9.json", "pax9_data.json"), StateAlreadySubmitted},
		{"data done by marker", StageData, "pax9", files("pax9.json", ".qfold-data.json"), StateAlreadySubmitted},
		{"data ignores other marker", StageData, "pax9", files("pax9.json", ".qfold-full.json"), StateReady},

		{"inference ready", StageInference, "pax9", files("pax9.json", "pax9_data.json"), StateReady},
		{"inference needs data", StageInference, "pax9", files("pax9.json"), StateNotReady},
		{"inference reads data stage output", StageInference, "pax9", append(files("pax9.json", "pax9/pax9_data.json"), dir("pax9")), StateReady},
		{"inference output dir alone is not done", StageInference, "pax9", append(files("pax9_data.json"), dir("pax9")), StateReady},
		{"inference done by summary", StageInference, "pax9", files("pax9/pax9_data.json", "pax9/pax9_summary_confidences.json"), StateAlreadySubmitted},
		{"inference done by lower-case model", StageInference, "A6H8I1_DANRE_0", files("a6h8i1_danre_0/a6h8i1_danre_0_data.json", "a6h8i1_danre_0/a6h8i1_danre_0_model.cif"), StateAlreadySubmitted},
		{"inference done by marker", StageInference, "pax9", files("pax9_data.json", ".qfold-inference.json"), StateAlreadySubmitted},
		{"inference missing input wins over marker", StageInference, "pax9", files("pax9.json", ".qfold-inference.json"), StateNotReady},

		{"full from plain input", StageFull, "foo_0", files("foo_0.json"), StateReady},
		{"full from data input", StageFull, "foo_0", files("foo_0_data.json"), StateReady},
		{"full nothing", StageFull, "foo_0", nil, StateNotReady},
		{"full done by inference marker", StageFull, "foo_0", files("foo_0.json", ".qfold-inference.json"), StateAlreadySubmitted},
		{"full done by model output", StageFull, "foo_0", append(files("foo_0.json", "foo_0/foo_0_model.cif"), dir("foo_0")), StateAlreadySubmitted},
		{"data done by output dir data", StageData, "pax9", files("pax9.json", "pax9/pax9_data.json"), StateAlreadySubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Classify(tt.stage, tt.job, tt.entries)
			if got != tt.want {
				t.Errorf("Classify = %s (%s), want %s", got, reason, tt.want)
			}
			if got != StateReady && reason == "" {
				t.Error("expected a reason for a skipped job")
			}
		})
	}
}

func TestInputPrefersData(t *testing.T) {
	if in, _ := Input(StageFull, "j", files("j.json", "j_data.json")); in != "j_data.json" {
		t.Errorf("full input = %s, want j_data.json", in)
	}
	if in, _ := Input(StageData, "j", files("j.json", "j_data.json")); in != "j.json" {
		t.Errorf("data input = %s, want j.json", in)
	}
	if in, ok := Input(StageFull, "J", files("J.json", "j/j_data.json")); !ok || in != "j/j_data.json" {
		t.Errorf("full input = %s %v, want j/j_data.json", in, ok)
	}
}

func TestStageOverrides(t *testing.T) {
	got := map[string]any{}
	for _, o := range StageOverrides(StageFull, "/jobs/b/j", "j_data.json") {
		got[o.Key] = o.Value
	}
	if got["run_data_pipeline"] != false || got["phase"] != "gpu" || got["input_json"] != "/jobs/b/j/j_data.json" {
		t.Errorf("full overrides = %v", got)
	}

	got = map[string]any{}
	for _, o := range StageOverrides(StageFull, "/jobs/b/j", "j.json") {
		got[o.Key] = o.Value
	}
	if got["run_data_pipeline"] != true {
		t.Errorf("full without data must run the pipeline: %v", got)
	}
}

func TestParseStage(t *testing.T) {
	if _, err := ParseStage("gpu"); err == nil {
		t.Error("expected error for unknown stage")
	}
	if s, err := ParseStage("inference"); err != nil || s != StageInference {
		t.Errorf("ParseStage(inference) = %s, %v", s, err)
	}
}
