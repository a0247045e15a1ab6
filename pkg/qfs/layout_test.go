package qfs

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestListMissingDirIsEmpty(t *testing.T) {
	entries, err := List(afero.NewMemMapFs(), "/nope")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty listing, got %v", entries)
	}
}

func TestListAndLookups(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := Layout{Fs: fs, Root: "/jobs"}
	dir := l.JobDir("motifs", "pax9")

	if err := WriteFile(fs, filepath.Join(dir, InputFile("pax9")), []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := fs.MkdirAll(filepath.Join(dir, "pax9"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := List(fs, dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !HasFile(entries, "pax9.json") {
		t.Error("expected pax9.json")
	}
	if HasFile(entries, "pax9") {
		t.Error("pax9 is a directory, not a file")
	}
	if !HasDir(entries, "pax9") {
		t.Error("expected pax9/ directory")
	}

	jobs, err := ListDirs(fs, l.BatchDir("motifs"))
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0] != "pax9" {
		t.Errorf("ListDirs = %v", jobs)
	}
}

func TestOutputDirNames(t *testing.T) {
	if got := OutputDirNames("pax9"); len(got) != 1 {
		t.Errorf("OutputDirNames(pax9) = %v", got)
	}
	got := OutputDirNames("A6H8I1_DANRE_0")
	if len(got) != 2 || got[1] != "a6h8i1_danre_0" {
		t.Errorf("OutputDirNames = %v", got)
	}
}

func TestListJobIncludesOutputDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/jobs/b/A_0"
	for _, rel := range []string{"A_0.json", "a_0/a_0_data.json", "other/x.json"} {
		if err := WriteFile(fs, filepath.Join(dir, rel), []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := ListJob(fs, dir, "A_0")
	if err != nil {
		t.Fatal(err)
	}
	if !HasFile(entries, "A_0.json") || !HasDir(entries, "a_0") || !HasFile(entries, "a_0/a_0_data.json") {
		t.Errorf("entries = %+v", entries)
	}
	if HasFile(entries, "other/x.json") {
		t.Error("only the tool's output directory is listed")
	}

	data := DataCandidates("A_0")
	if len(data) != 3 || data[0] != "A_0_data.json" || data[2] != "a_0/a_0_data.json" {
		t.Errorf("DataCandidates = %v", data)
	}
	for _, c := range InferenceCandidates("A_0") {
		if c == "a_0" || c == "A_0" {
			t.Errorf("the output directory alone must not count as inference output: %v", c)
		}
	}
}
