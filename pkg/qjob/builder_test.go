package qjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/spf13/afero"
)

func testLayout() qfs.Layout {
	return qfs.Layout{Fs: afero.NewMemMapFs(), Root: "/jobs"}
}

func fooBar() []Record {
	return []Record{
		{TFName: "foo", Sequence: "MKTAYIAK", Motif: "CACGTG"},
		{TFName: "bar", Sequence: "MSDNELQQ", Motif: "TTGACA"},
	}
}

func TestPlanAllPairs(t *testing.T) {
	b := NewBuilder(testLayout(), nil)
	records := fooBar()
	before := append([]Record(nil), records...)

	report, err := b.Plan(records, BuildOptions{Batch: "ava", Mode: ModeAllPairs})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !reflect.DeepEqual(records, before) {
		t.Error("Plan mutated its input")
	}

	var names []string
	for _, j := range report.Jobs {
		names = append(names, j.Request.Name)
	}
	want := []string{"foo_0", "foo_1", "bar_0", "bar_1"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("jobs = %v, want %v", names, want)
	}

	bar1 := report.Jobs[3].Request
	if bar1.Sequences[0].Sequence() != "MSDNELQQ" || bar1.Sequences[0].Kind() != KindProtein {
		t.Errorf("bar_1 protein = %+v", bar1.Sequences[0])
	}
	if bar1.Sequences[1].Sequence() != "TTGACA" {
		t.Errorf("bar_1 motif = %s, want TTGACA", bar1.Sequences[1].Sequence())
	}
	if bar1.Sequences[2].Sequence() != "TGTCAA" {
		t.Errorf("bar_1 reverse complement = %s, want TGTCAA", bar1.Sequences[2].Sequence())
	}
	if len(bar1.ModelSeeds) != 5 {
		t.Errorf("all_pairs seeds = %v, want five", bar1.ModelSeeds)
	}
	if report.Jobs[0].Path != "/jobs/ava/foo_0/foo_0.json" {
		t.Errorf("path = %s", report.Jobs[0].Path)
	}
}

func TestPlanAllPairsUsesExternalOrder(t *testing.T) {
	b := NewBuilder(testLayout(), nil)
	report, err := b.Plan(fooBar(), BuildOptions{Batch: "ava", Mode: ModeAllPairs, MotifOrder: []string{"TTGACA", "CACGTG", "GGGG"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Jobs) != 6 {
		t.Fatalf("jobs = %d, want 6", len(report.Jobs))
	}
	if got := report.Jobs[0].Request.Sequences[1].Sequence(); got != "TTGACA" {
		t.Errorf("foo_0 motif = %s, want TTGACA (external order, not re-sorted)", got)
	}
}

func TestPlanSingleAndPadded(t *testing.T) {
	b := NewBuilder(testLayout(), nil)

	single, err := b.Plan(fooBar(), BuildOptions{Batch: "motifs", Mode: ModeSingle})
	if err != nil {
		t.Fatal(err)
	}
	if len(single.Jobs) != 2 || single.Jobs[0].Request.Name != "foo" {
		t.Fatalf("single jobs = %+v", single.Jobs)
	}
	if !reflect.DeepEqual(single.Jobs[0].Request.ModelSeeds, []int{1}) {
		t.Errorf("single seeds = %v", single.Jobs[0].Request.ModelSeeds)
	}

	padded, err := b.Plan(fooBar(), BuildOptions{Batch: "padding_2", Mode: ModePadded, Padding: 2, Seeds: 3})
	if err != nil {
		t.Fatal(err)
	}
	foo := padded.Jobs[0].Request
	if foo.Sequences[1].Sequence() != "AACACGTGAA" {
		t.Errorf("padded motif = %s", foo.Sequences[1].Sequence())
	}
	if foo.Sequences[2].Sequence() != "TTCACGTGTT" {
		t.Errorf("padded reverse complement = %s", foo.Sequences[2].Sequence())
	}
	if !reflect.DeepEqual(foo.ModelSeeds, []int{1, 2, 3}) {
		t.Errorf("seeds = %v", foo.ModelSeeds)
	}
}

func TestPlanExcludesMissingInputs(t *testing.T) {
	b := NewBuilder(testLayout(), nil)
	records := []Record{
		{TFName: "foo", Sequence: "MKT", Motif: "CACGTG"},
		{TFName: "nomotif", Sequence: "MKT"},
		{TFName: "noseq", Motif: "ACGT"},
	}
	report, err := b.Plan(records, BuildOptions{Batch: "motifs", Mode: ModeSingle})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(report.Jobs))
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("skipped = %+v", report.Skipped)
	}
	for _, s := range report.Skipped {
		if !qerr.IsCode(s.Err, qerr.CodeMissingInput) {
			t.Errorf("skip %s: %v, want missing_input", s.TF, s.Err)
		}
	}
}

func TestBuildLogsEachSkipOnce(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuilder(testLayout(), qlog.NewLogger(slog.LevelInfo, &buf))
	records := []Record{
		{TFName: "foo", Sequence: "MKT", Motif: "CACGTG"},
		{TFName: "noseq", Motif: "ACGT"},
	}
	if _, err := b.Build(records, BuildOptions{Batch: "motifs", Mode: ModeSingle}); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "excluded from batch"); n != 1 {
		t.Errorf("skip logged %d times:\n%s", n, buf.String())
	}

	buf.Reset()
	if _, err := b.Plan(records, BuildOptions{Batch: "motifs", Mode: ModeSingle}); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "excluded from batch"); n != 1 {
		t.Errorf("dry run logged the skip %d times", n)
	}
}

func TestPlanRejectsUnknownMode(t *testing.T) {
	b := NewBuilder(testLayout(), nil)
	if _, err := b.Plan(fooBar(), BuildOptions{Batch: "x", Mode: "weird"}); !qerr.IsCode(err, qerr.CodeConfigError) {
		t.Errorf("err = %v, want config_error", err)
	}
}

const priorData = `{
    "name": "foo",
    "modelSeeds": [1],
    "sequences": [
        {"protein": {"id": "A", "sequence": "MKTAYIAK", "modifications": [], "unpairedMsa": ">q\nMKTAYIAK\n", "pairedMsa": "", "templates": [{"mmcif": "data_x", "queryIndices": [0, 1], "templateIndices": [0, 1]}]}},
        {"dna": {"id": "B", "sequence": "CACGTG"}},
        {"dna": {"id": "C", "sequence": "CACGTG"}}
    ],
    "dialect": "alphafold3",
    "version": 1
}`

func TestBuildReusesPriorProteinData(t *testing.T) {
	layout := testLayout()
	if err := qfs.WriteFile(layout.Fs, "/jobs/motifs/foo/foo_data.json", []byte(priorData)); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(layout, nil)
	report, err := b.Build(fooBar(), BuildOptions{Batch: "ava", Mode: ModeAllPairs, ProteinSource: "/jobs/motifs"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(report.Jobs) != 4 {
		t.Fatalf("jobs = %d, want 4", len(report.Jobs))
	}

	foo0 := report.Jobs[0]
	if filepath.Base(foo0.Path) != "foo_0_data.json" {
		t.Errorf("foo_0 written to %s, want _data.json variant", foo0.Path)
	}
	bar0 := report.Jobs[2]
	if filepath.Base(bar0.Path) != "bar_0.json" {
		t.Errorf("bar_0 written to %s, want plain variant", bar0.Path)
	}

	written, err := afero.ReadFile(layout.Fs, foo0.Path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeJobRequest(written)
	if err != nil {
		t.Fatal(err)
	}
	prior, _ := DecodeJobRequest([]byte(priorData))
	for _, key := range []string{"templates", "unpairedMsa", "pairedMsa", "modifications"} {
		var a, b bytes.Buffer
		json.Compact(&a, prior.Sequences[0].Protein.Extra[key])
		json.Compact(&b, got.Sequences[0].Protein.Extra[key])
		if a.String() != b.String() {
			t.Errorf("%s changed: %s -> %s", key, a.String(), b.String())
		}
	}
	if !strings.Contains(string(written), "\n    \"name\": \"foo_0\"") {
		t.Errorf("expected 4-space indented JSON, got:\n%s", written)
	}
}

func TestBuildReusesDataStageOutput(t *testing.T) {
	layout := testLayout()
	// The data stage leaves its output in the tool's directory under the job.
	if err := qfs.WriteFile(layout.Fs, "/jobs/motifs/bar/bar/bar_data.json", []byte(priorData)); err != nil {
		t.Fatal(err)
	}

	report, err := NewBuilder(layout, nil).Plan(fooBar(), BuildOptions{Batch: "ava", Mode: ModeSingle, ProteinSource: "/jobs/motifs"})
	if err != nil {
		t.Fatal(err)
	}
	for _, job := range report.Jobs {
		want := job.Request.Name + ".json"
		if job.Request.Name == "bar" {
			want = "bar_data.json"
		}
		if filepath.Base(job.Path) != want {
			t.Errorf("%s planned as %s, want %s", job.Request.Name, job.Path, want)
		}
	}
}

func TestJobRequestJSONShape(t *testing.T) {
	req := JobRequest{
		Name:       "foo",
		ModelSeeds: []int{1},
		Sequences:  []SequenceEntity{ProteinEntity("A", "MK"), DNAEntity("B", "AC")},
		Dialect:    Dialect,
		Version:    Version,
		OutputDir:  "/ignored",
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name":"foo","modelSeeds":[1],"sequences":[{"protein":{"sequence":"MK","id":"A"}},{"dna":{"sequence":"AC","id":"B"}}],"dialect":"alphafold3","version":1}`
	if string(data) != want {
		t.Errorf("json =\n%s\nwant\n%s", data, want)
	}
}

func TestValidateDuplicateIDs(t *testing.T) {
	req := JobRequest{Name: "x", Sequences: []SequenceEntity{ProteinEntity("A", "MK"), DNAEntity("A", "AC")}}
	if err := req.Validate(); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestLoadRecords(t *testing.T) {
	in := "Motif_ID,DBID,TF_Name,Sequence,Motif\nM1,ENSP1,pax9,MKT,cacgtg\nM2,ENSP2,vsx2,,\n"
	records, err := LoadRecords(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].Motif != "CACGTG" || records[0].DBID != "ENSP1" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if got := TFOrder(records); !reflect.DeepEqual(got, []string{"pax9", "vsx2"}) {
		t.Errorf("TFOrder = %v", got)
	}

	if _, err := LoadRecords(strings.NewReader("TF_Name,Motif\n")); !qerr.IsCode(err, qerr.CodeParseError) {
		t.Errorf("missing column err = %v", err)
	}
}

type mapFetcher map[string]string

func (m mapFetcher) FetchSequence(_ context.Context, id string) (string, bool, error) {
	s, ok := m[id]
	return s, ok, nil
}

func TestFillSequencesAndResolveMotifs(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/pwms/M2.txt", []byte("Pos\tA\tC\tG\tT\n1\t0.9\t0\t0\t0.1\n2\t0\t0\t1\t0\n"), 0o644)

	records := []Record{
		{TFName: "pax9", DBID: "ENSP1", Motif: "ACGT"},
		{TFName: "vsx2", DBID: "ENSP2", MotifID: "M2"},
		{TFName: "gone", DBID: "ENSP3", Motif: "ACGT"},
	}
	filled, err := FillSequences(context.Background(), records, mapFetcher{"ENSP1": "MKT", "ENSP2": "MSD"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if filled[0].Sequence != "MKT" || filled[1].Sequence != "MSD" || filled[2].Sequence != "" {
		t.Errorf("filled = %+v", filled)
	}
	if records[0].Sequence != "" {
		t.Error("FillSequences mutated its input")
	}

	resolved, err := ResolveMotifs(fs, filled, "/pwms")
	if err != nil {
		t.Fatal(err)
	}
	if resolved[1].Motif != "AG" {
		t.Errorf("consensus motif = %q, want AG", resolved[1].Motif)
	}
}

type flakyFetcher struct{}

func (flakyFetcher) FetchSequence(_ context.Context, id string) (string, bool, error) {
	if id == "ENSP1" {
		return "", false, errors.New("connection reset")
	}
	return "MSD", true, nil
}

func TestFillSequencesFailureIsPerRecord(t *testing.T) {
	records := []Record{
		{TFName: "pax9", DBID: "ENSP1", Motif: "ACGT"},
		{TFName: "vsx2", DBID: "ENSP2", Motif: "ACGT"},
	}
	filled, err := FillSequences(context.Background(), records, flakyFetcher{}, nil)
	if err != nil {
		t.Fatalf("a failed lookup must not abort the fill: %v", err)
	}
	if filled[0].Sequence != "" || filled[1].Sequence != "MSD" {
		t.Errorf("filled = %+v", filled)
	}

	report, err := NewBuilder(testLayout(), nil).Plan(filled, BuildOptions{Batch: "b", Mode: ModeSingle})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Jobs) != 1 || len(report.Skipped) != 1 || !qerr.IsCode(report.Skipped[0].Err, qerr.CodeMissingInput) {
		t.Errorf("report = %+v", report)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FillSequences(ctx, records, flakyFetcher{}, nil); err == nil {
		t.Error("expected cancellation to stop the fill")
	}
}

func TestEnsemblFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "protein" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		switch r.URL.Path {
		case "/sequence/id/ENSP1":
			fmt.Fprint(w, ">ENSP1 pax9\nMKTAY\nIAKQR\n>ENSP1.2\nZZZ\n")
		case "/sequence/id/ENSP404":
			http.Error(w, "not found", http.StatusBadRequest)
		default:
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	f := NewEnsemblFetcher(srv.URL + "/")
	ctx := context.Background()
	if seq, ok, err := f.FetchSequence(ctx, "ENSP1"); err != nil || !ok || seq != "MKTAYIAKQR" {
		t.Errorf("ENSP1 = %q %v %v", seq, ok, err)
	}
	if _, ok, err := f.FetchSequence(ctx, "ENSP404"); err != nil || ok {
		t.Errorf("unknown id = %v %v", ok, err)
	}
	if _, _, err := f.FetchSequence(ctx, "ENSP503"); err == nil {
		t.Error("expected an error for a server failure")
	}
}
